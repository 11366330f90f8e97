package handler

import (
	"fmt"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/d60-Lab/tweetfeed/internal/pagination"
)

// RegisterValidators 在 gin 的校验引擎上注册 cursor 规则
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
	}
	return v.RegisterValidation("cursor", validCursor)
}

func validCursor(fl validator.FieldLevel) bool {
	_, err := pagination.Decode(pagination.Cursor(fl.Field().String()))
	return err == nil
}
