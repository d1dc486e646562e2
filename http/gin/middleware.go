// Package gin provides Gin-compatible middleware for x402 payment gating.
// It translates gin.Context to stdlib http patterns and delegates the
// payment flow to the processor in the http package.
package gin

import (
	"github.com/gin-gonic/gin"
	"github.com/x402arcade/x402-go"
	httpx402 "github.com/x402arcade/x402-go/http"
	"github.com/x402arcade/x402-go/http/internal/helpers"
)

// PaymentKey is the gin.Context key holding the *x402.PaymentRecord.
const PaymentKey = "x402_payment"

// NewGinX402Middleware creates a new x402 payment middleware for Gin.
//
// On success the record is stored with c.Set(PaymentKey, record), the
// X-Payment-Response header is added and c.Next() runs the handler. On
// failure the error response is written and the chain is aborted.
//
// Example usage:
//
//	r := gin.Default()
//	r.POST("/api/games/:game/start", NewGinX402Middleware(&httpx402.Config{Payment: cfg}), func(c *gin.Context) {
//	    record, _ := PaymentFromContext(c)
//	    c.JSON(200, gin.H{"payer": record.Payer})
//	})
func NewGinX402Middleware(config *httpx402.Config) gin.HandlerFunc {
	processor, err := httpx402.NewProcessorFromConfig(config)
	if err != nil {
		panic("x402: " + err.Error())
	}
	return Middleware(processor, config.Description)
}

// Middleware gates Gin routes with an existing processor.
func Middleware(p *httpx402.Processor, description string) gin.HandlerFunc {
	return func(c *gin.Context) {
		resource := helpers.ResourceURL(c.Request)

		record, perr := p.Process(c.Request.Context(), c.Request.Header, resource)
		if perr != nil {
			p.WriteError(c.Writer, resource, description, perr)
			c.Abort()
			return
		}

		p.WriteReceipt(c.Writer, record)
		c.Set(PaymentKey, record)
		c.Request = c.Request.WithContext(httpx402.WithPayment(c.Request.Context(), record))
		c.Next()
	}
}

// PaymentFromContext returns the record stored by the middleware.
func PaymentFromContext(c *gin.Context) (*x402.PaymentRecord, bool) {
	v, ok := c.Get(PaymentKey)
	if !ok {
		return nil, false
	}
	record, ok := v.(*x402.PaymentRecord)
	return record, ok
}
