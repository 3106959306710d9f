package utils

import (
	"strings"
)

// MaskHalf скрывает вторую половину строки; используется для ИНН и
// прочих идентификаторов, которые не должны попадать в логи целиком.
func MaskHalf(input string) string {
	if input == "" {
		return input
	}
	if len(input) < 2 {
		return input
	}
	length := len(input)
	visibleLength := length / 2
	maskedLength := length - visibleLength
	return input[:visibleLength] + strings.Repeat("*", maskedLength)
}
