package handler

import (
	"strings"
	"sync"
	"unicode"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const maxScanCodeLength = 256

// ReplacementRequest adds a substitute part. Quantity is checked by the
// ledger so an invalid one comes back as a rejection, not a 400.
type ReplacementRequest struct {
	ID             string `json:"id"`
	SKU            string `json:"sku" binding:"required,scancode"`
	Quantity       int    `json:"quantity"`
	ManufacturerID int    `json:"manufacturer_id"`
	BrandID        int    `json:"brand_id"`
}

type DelayedRequest struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

// ScanRequest carries one decoded barcode from the scanner.
type ScanRequest struct {
	Code string `json:"code" binding:"required,scancode"`
}

type SubmitRequest struct {
	AllowPartial bool `json:"allow_partial"`
}

var registerOnce sync.Once

// RegisterValidators adds the custom binding validations to gin's engine.
func RegisterValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("scancode", validScanCode)
		}
	})
}

// validScanCode accepts non-blank printable text of bounded length.
func validScanCode(fl validator.FieldLevel) bool {
	code := fl.Field().String()
	if strings.TrimSpace(code) == "" || len(code) > maxScanCodeLength {
		return false
	}
	for _, r := range code {
		if !unicode.IsPrint(r) && r != '\n' && r != '\r' && r != '\t' {
			return false
		}
	}
	return true
}
