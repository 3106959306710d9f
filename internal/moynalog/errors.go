package moynalog

import (
	"errors"
	"fmt"
)

var (
	// ErrServiceUnavailable - портал на технических работах (503 на
	// статусном эндпоинте).
	ErrServiceUnavailable = errors.New("FNS portal is temporarily unavailable due to maintenance")

	// ErrEmptyResponse - эндпоинт вернул пустое тело там, где
	// ожидался контент.
	ErrEmptyResponse = errors.New("empty response from FNS")

	// ErrAuthenticationIncomplete - в ответе аутентификации нет
	// token или refreshToken.
	ErrAuthenticationIncomplete = errors.New("can't get tokens from FNS auth response")

	// ErrDownloadFailed - эндпоинт печати чека ответил не 200.
	ErrDownloadFailed = errors.New("can't download receipt from FNS")
)

// TransportError - сетевая ошибка или ошибка TLS при обращении к порталу.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("moynalog: %s request failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// MalformedRecordError - строка CSV-выгрузки не соответствует
// позиционному контракту (неверное число полей либо неразбираемое
// значение). Row - номер строки данных, начиная с 1, без учёта заголовка.
type MalformedRecordError struct {
	Row    int
	Fields int
	Err    error
}

func (e *MalformedRecordError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("moynalog: history row %d: %v", e.Row, e.Err)
	}
	return fmt.Sprintf("moynalog: history row %d: expected %d fields, got %d", e.Row, historyFieldCount, e.Fields)
}

func (e *MalformedRecordError) Unwrap() error { return e.Err }
