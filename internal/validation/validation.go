package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var errEngine = errors.New("validator engine is not of type *validator.Validate")

func ginEngine() (*validator.Validate, error) {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		return v, nil
	}
	return nil, errEngine
}

func MustRegisterGin(tag string, fn validator.Func) {
	v, err := ginEngine()
	if err == nil {
		err = Register(v, tag, fn)
	}
	if err != nil {
		panic(err)
	}
}

func MustRegisterGinAlias(tag string, alias string) {
	v, err := ginEngine()
	if err != nil {
		panic(err)
	}
	RegisterAlias(v, tag, alias)
}

// MustUseJSONNamesGin reports gin binding errors under the request's JSON
// (or uri) field names.
func MustUseJSONNamesGin() {
	v, err := ginEngine()
	if err != nil {
		panic(err)
	}
	UseJSONNames(v)
}

func Register(v *validator.Validate, tag string, fn validator.Func) error {
	return v.RegisterValidation(tag, fn)
}

func RegisterAlias(v *validator.Validate, tag string, alias string) {
	v.RegisterAlias(tag, alias)
}

// UseJSONNames makes FieldError.Field return the json tag name, falling
// back to the uri tag, then the Go field name.
func UseJSONNames(v *validator.Validate) {
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, key := range []string{"json", "uri"} {
			name, _, _ := strings.Cut(f.Tag.Get(key), ",")
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return f.Name
	})
}
