package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/models"
)

const maxJSONBodyBytes = 64 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("provider", func(fl validator.FieldLevel) bool {
		_, ok := models.ParseAIProvider(fl.Field().String())
		return ok
	})
	return v
}

// decodeAndValidate reads a JSON body into dst and runs struct validation.
// On failure a 400 response has been written.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, logger *zap.Logger, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	if err := dec.Decode(dst); err != nil {
		badRequest(w, logger, "invalid_request", "Invalid request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		badRequest(w, logger, "validation_error", validationMessage(err))
		return false
	}
	return true
}

// validationMessage reports the first failing field.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag())
	}
	return "invalid request"
}
