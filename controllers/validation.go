package controllers

import (
	"fmt"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/cppla/guildhall/models"
)

var registerOnce sync.Once

// RegisterValidators installs the custom binding rules on gin's validator.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		mustRegister(v, "calendar_date", validateCalendarDate)
	})
}

// mustRegister panics at startup rather than letting every later binding of tag fail.
func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register validator %q: %v", tag, err))
	}
}

// validateCalendarDate accepts YYYY-MM-DD strings naming a real day.
func validateCalendarDate(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if len(s) != len("2006-01-02") {
		return false
	}
	_, err := models.ParseDate(s)
	return err == nil
}
