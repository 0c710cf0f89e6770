package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"agrochat/api/handlers"
	"agrochat/api/routes"
	"agrochat/config"
	"agrochat/db"
	"agrochat/services"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to the configuration file")
	flag.Parse()

	// .env не обязателен, локально удобен для секретов
	_ = godotenv.Load()

	if err := config.LoadConfig(configPath); err != nil {
		panic("Failed to load configuration: " + err.Error())
	}
	log.Println("Starting server...", config.AppConfig.Backend)

	if err := db.ConnectDB(); err != nil {
		panic("Failed to connect to the database: " + err.Error())
	}

	// Redis для счетчиков непрочитанных: без него работаем дальше
	if err := services.InitRedis(); err != nil {
		log.Printf("Warning: Redis unavailable, unread counters disabled: %v", err)
	}
	defer services.CloseRedis()

	registry := services.NewChannelRegistry()

	// AMQP-relay опционален: без него fan-out только внутри инстанса
	var relay *services.AMQPRelay
	if config.AppConfig.Broker.Enabled {
		var err error
		relay, err = services.NewAMQPRelay(config.AppConfig.Broker.URL, config.AppConfig.Broker.Exchange)
		if err != nil {
			log.Fatalf("Failed to init AMQP relay: %v", err)
		}
		defer relay.Close()

		queueName := fmt.Sprintf("agrochat_events_%d", os.Getpid())
		if err := relay.StartConsumer(context.Background(), queueName, registry); err != nil {
			log.Fatalf("Failed to start AMQP consumer: %v", err)
		}
	}

	broker := services.NewFanoutBroker(registry, relay)
	counters := services.NewCounterService(services.RedisClient)
	messageService := services.NewMessageService(broker, counters)
	threadService := services.NewThreadService()

	router := gin.Default()

	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	routes.MessagesApi(router,
		handlers.NewMessageHandlers(messageService, threadService, counters),
		handlers.NewWSHandlers(registry),
	)

	addr := fmt.Sprintf("%s:%d", config.AppConfig.Backend.Host, config.AppConfig.Backend.Port)
	if addr == ":0" {
		addr = ":8080"
	}
	if err := router.Run(addr); err != nil {
		panic(err)
	}
}
