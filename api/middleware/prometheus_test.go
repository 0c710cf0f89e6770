package middleware

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"agrochat/services"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// error_type - метка с конечным набором значений, текст ошибки
// (а в нем бывают id и имена полей) в нее попадать не должен
func TestRecordMessageOperationErrorClasses(t *testing.T) {
	d := time.Millisecond

	RecordMessageOperation("classify", "error", "test", d, services.NewValidationError("target", "is required"))
	RecordMessageOperation("classify", "error", "test", d, services.NewNotFoundError("sender", 42))
	RecordMessageOperation("classify", "error", "test", d, fmt.Errorf("failed to save message: %w", errors.New("connection reset")))
	RecordMessageOperation("classify", "ok", "test", d, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(messageErrors.WithLabelValues("classify", "validation", "test")))
	assert.Equal(t, 1.0, testutil.ToFloat64(messageErrors.WithLabelValues("classify", "not_found", "test")))
	assert.Equal(t, 1.0, testutil.ToFloat64(messageErrors.WithLabelValues("classify", "internal", "test")))
	assert.Equal(t, 4.0, testutil.ToFloat64(messageOperationsTotal.WithLabelValues("classify", "error", "test"))+
		testutil.ToFloat64(messageOperationsTotal.WithLabelValues("classify", "ok", "test")))
}

func TestErrorClassUnwrapsWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("create failed: %w", services.NewValidationError("text", "is required"))
	assert.Equal(t, "validation", errorClass(wrapped))
	assert.Equal(t, "not_found", errorClass(services.NewNotFoundError("message", 7)))
	assert.Equal(t, "internal", errorClass(errors.New("boom")))
}
