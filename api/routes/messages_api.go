package routes

import (
	"agrochat/api/handlers"
	"agrochat/api/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func MessagesApi(router *gin.Engine, msg *handlers.MessageHandlers, ws *handlers.WSHandlers) *gin.RouterGroup {
	router.Use(middleware.PrometheusMiddleware("agrochat"))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", ws.Connect)

	api := router.Group("/api/v1/")
	{
		api.POST("messages", msg.CreateMessage)
		api.GET("messages/thread", msg.GetDirectThread)
		api.GET("messages/room/:room", msg.GetRoomThread)
		api.GET("messages/user/:user_id", msg.ListForUser)
		api.GET("messages/user/:user_id/unread", msg.GetUnread)
		api.PATCH("messages/:id/delivered", msg.MarkDelivered)
		api.PATCH("messages/:id/read", msg.MarkRead)
	}
	return api
}
