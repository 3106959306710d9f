package moynalog

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// IncomeType определяет, от кого получен доход
type IncomeType string

const (
	IncomeTypeFromIndividual    IncomeType = "FROM_INDIVIDUAL"
	IncomeTypeFromLegalEntity   IncomeType = "FROM_LEGAL_ENTITY"
	IncomeTypeFromForeignAgency IncomeType = "FROM_FOREIGN_AGENCY"
)

// PaymentType определяет способ оплаты
type PaymentType string

const (
	PaymentTypeCash    PaymentType = "CASH"
	PaymentTypeAccount PaymentType = "ACCOUNT"
)

// AuthRequest - структура для запроса аутентификации
type AuthRequest struct {
	Username   string     `json:"username"`
	Password   string     `json:"password"`
	DeviceInfo DeviceInfo `json:"deviceInfo"`
}

// DeviceInfo - информация об устройстве для аутентификации
type DeviceInfo struct {
	SourceDeviceId string      `json:"sourceDeviceId"`
	SourceType     string      `json:"sourceType"`
	AppVersion     string      `json:"appVersion"`
	MetaDetails    MetaDetails `json:"metaDetails"`
}

// MetaDetails - дополнительная информация об устройстве
type MetaDetails struct {
	UserAgent string `json:"userAgent"`
}

// AuthResponse - ответ на запрос аутентификации. Помимо пары токенов
// портал возвращает профиль налогоплательщика; тело ответа целиком
// сохраняется в Raw, чтобы не терять неизвестные поля.
type AuthResponse struct {
	Token         string     `json:"token"`
	RefreshToken  string     `json:"refreshToken"`
	TokenExpireIn *time.Time `json:"tokenExpireIn,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// CreateReceiptParams - параметры регистрации дохода (чека).
// Обязательны только Name и Price; остальные поля имеют значения по
// умолчанию, вычисляемые в момент вызова.
type CreateReceiptParams struct {
	Name  string
	Price int64

	// Download сохраняет картинку чека в файл "чек_<uuid>.jpg"
	// в текущем каталоге.
	Download bool

	// Date - время операции; нулевое значение означает "сейчас".
	Date time.Time

	ContactPhone string
	DisplayName  string
	CustomerINN  string

	// IncomeType по умолчанию IncomeTypeFromIndividual.
	IncomeType IncomeType
	// PaymentType по умолчанию PaymentTypeCash.
	PaymentType PaymentType

	IgnoreMaxTotalIncomeRestriction bool
}

// CreateIncomeRequest - структура для запроса создания дохода (чека).
// Портал принимает суммы строками, время - в ISO-8601 с локальным
// смещением и точностью до секунд.
type CreateIncomeRequest struct {
	OperationTime                   string       `json:"operationTime"`
	RequestTime                     string       `json:"requestTime"`
	Services                        []Service    `json:"services"`
	TotalAmount                     string       `json:"totalAmount"`
	Client                          IncomeClient `json:"client"`
	PaymentType                     PaymentType  `json:"paymentType"`
	IgnoreMaxTotalIncomeRestriction bool         `json:"ignoreMaxTotalIncomeRestriction"`
}

// Service - услуга в чеке
type Service struct {
	Name     string `json:"name"`
	Amount   string `json:"amount"`
	Quantity string `json:"quantity"`
}

// IncomeClient - клиент в чеке
type IncomeClient struct {
	ContactPhone *string    `json:"contactPhone"`
	DisplayName  *string    `json:"displayName"`
	INN          *string    `json:"inn"`
	IncomeType   IncomeType `json:"incomeType"`
}

// CreateIncomeResponse - ответ на запрос создания дохода
type CreateIncomeResponse struct {
	ApprovedReceiptUUID string `json:"approvedReceiptUuid"`
}

// CancelParams - параметры аннулирования чека. Нулевые значения
// заменяются значениями по умолчанию в момент вызова.
type CancelParams struct {
	// Comment по умолчанию "Чек сформирован ошибочно".
	Comment string
	// Date - время аннулирования; нулевое значение означает "сейчас".
	Date        time.Time
	PartnerCode string
}

// CancelRequest - структура для запроса аннулирования чека
type CancelRequest struct {
	OperationTime string  `json:"operationTime"`
	RequestTime   string  `json:"requestTime"`
	Comment       string  `json:"comment"`
	ReceiptUUID   string  `json:"receiptUuid"`
	PartnerCode   *string `json:"partnerCode"`
}

// Operation - запись из истории доходов (одна строка CSV-выгрузки)
type Operation struct {
	ID       string
	Date     time.Time
	Name     string
	Price    decimal.Decimal
	Tax      decimal.Decimal
	Status   string
	Customer Customer
	Partner  string
}

// Customer - покупатель в записи истории; ИНН может быть пустым
type Customer struct {
	Type string
	INN  string
	Name string
}

// HistoryQuery - параметры запроса истории. Нулевой From означает
// начало времён, нулевой To - "сейчас". Нулевое значение Ascending
// сохраняет порядок портала по умолчанию: сначала новые.
type HistoryQuery struct {
	From          time.Time
	To            time.Time
	Ascending     bool
	HideCancelled bool
}

// HistoryOptions - сквозные опции для производных запросов истории
// (сегодня/неделя/месяц и их "предыдущие" варианты).
type HistoryOptions struct {
	Ascending     bool
	HideCancelled bool
}
