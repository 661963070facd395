package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure at the boundary where it was observed so that
// callers (retry policy, user-facing messages) never need to inspect error text.
type ErrorKind string

const (
	KindUnknown         ErrorKind = "unknown"
	KindDeviceAccess    ErrorKind = "device_access"
	KindOversize        ErrorKind = "oversize"
	KindEmptyResult     ErrorKind = "empty_result"
	KindSummarization   ErrorKind = "summarization"
	KindConnection      ErrorKind = "connection"
	KindAuth            ErrorKind = "auth"
	KindPayloadTooLarge ErrorKind = "payload_too_large"
	KindOverloaded      ErrorKind = "overloaded"
	KindRateLimited     ErrorKind = "rate_limited"
	KindUnavailable     ErrorKind = "unavailable"
	KindStorageParse    ErrorKind = "storage_parse"
)

var (
	ErrBusy     = errors.New("a recording is already in progress")
	ErrNotFound = errors.New("not found")
)

type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func NewError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// UserMessage is the single human-readable line shown for a failure, in
// Brazilian Portuguese like the rest of the app's output.
func (e *Error) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return defaultMessages[e.Kind]
}

// Transient reports whether the failure is worth retrying.
func (k ErrorKind) Transient() bool {
	switch k {
	case KindOverloaded, KindRateLimited, KindUnavailable:
		return true
	}
	return false
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}

func IsTransient(err error) bool {
	return KindOf(err).Transient()
}

// UserMessage renders any error as the message shown to the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.UserMessage()
	}
	if errors.Is(err, ErrBusy) {
		return "Já existe uma gravação em andamento."
	}
	return defaultMessages[KindConnection]
}

var defaultMessages = map[ErrorKind]string{
	KindUnknown:         "Algo deu errado. Tente novamente.",
	KindDeviceAccess:    "Permissão de microfone necessária ou nenhum dispositivo de captura disponível.",
	KindOversize:        "O arquivo de áudio é grande demais para a API. Tente gravar em partes menores.",
	KindEmptyResult:     "A IA não retornou texto. Tente novamente com uma gravação mais curta.",
	KindSummarization:   "Não foi possível gerar o resumo inteligente.",
	KindConnection:      "Erro de conexão com o serviço de IA.",
	KindAuth:            "Chave de API inválida ou bloqueada. Verifique sua configuração.",
	KindPayloadTooLarge: "A gravação é longa demais para processar de uma vez. Tente gravar em partes menores.",
	KindOverloaded:      "O serviço de IA está sobrecarregado. Tente novamente em instantes.",
	KindRateLimited:     "Muitas requisições ao serviço de IA. Tente novamente em instantes.",
	KindUnavailable:     "O serviço de IA está temporariamente indisponível.",
	KindStorageParse:    "Os dados salvos não puderam ser lidos e foram descartados.",
}
