package registry

import (
	stdErrors "errors"
	"fmt"
	"reflect"
	"strconv"

	"github.com/go-playground/validator/v10"

	xerrors "intel-registry/internal/errors"
)

// HashLength 是所有哈希字段要求的十六进制字符数。
const HashLength = 64

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := f.Tag.Get("json")
		for i := 0; i < len(name); i++ {
			if name[i] == ',' {
				return name[:i]
			}
		}
		return name
	})
	if err := validate.RegisterValidation("hash64", func(fl validator.FieldLevel) bool {
		return IsHash(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	if err := validate.RegisterValidation("maxbytes", maxBytes); err != nil {
		panic(err)
	}
	if err := validate.RegisterValidation("prooftype", func(fl validator.FieldLevel) bool {
		return ProofType(fl.Field().Uint()).Valid()
	}); err != nil {
		panic(err)
	}
}

// maxBytes 按 UTF-8 字节数而非字符数限制字符串长度。
func maxBytes(fl validator.FieldLevel) bool {
	limit, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	return len(fl.Field().String()) <= limit
}

// IsHash 判断字符串是否恰好为 64 个十六进制字符（大小写不敏感）。
func IsHash(s string) bool {
	if len(s) != HashLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// fieldCodes 将字段映射到专用错误码，未列出的字段使用 INVALID_FORMAT。
var fieldCodes = map[string]xerrors.Code{
	"confidence": xerrors.CodeInvalidConfidence,
	"note":       xerrors.CodeNoteTooLong,
	"reason":     xerrors.CodeReasonTooLong,
}

// validateRequest 校验请求并返回第一个失败字段对应的统一错误。
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !stdErrors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return xerrors.Wrap(xerrors.CodeInvalidFormat, err, "")
	}
	fe := fieldErrs[0]
	code, ok := fieldCodes[fe.Field()]
	if !ok {
		code = xerrors.CodeInvalidFormat
	}
	return xerrors.New(code, describe(fe), xerrors.WithMetadata("field", fe.Field()))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "maxbytes":
		return fmt.Sprintf("%s exceeds %s bytes", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "hash64":
		return fmt.Sprintf("%s must be %d hex characters", fe.Field(), HashLength)
	case "prooftype":
		return fmt.Sprintf("%s is not a known proof type", fe.Field())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
