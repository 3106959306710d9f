package config

import (
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type config struct {
	email    string
	inn      string
	password string

	insecureTLS bool

	incomeName  string
	incomePrice int64

	reportCronSpec string
}

var conf config

// InitConfig загружает конфигурацию из переменных окружения; .env в
// рабочем каталоге подхватывается, если есть.
func InitConfig() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	conf.email = mustEnv("MOYNALOG_EMAIL")
	conf.inn = mustEnv("MOYNALOG_INN")
	conf.password = mustEnv("MOYNALOG_PASSWORD")

	conf.insecureTLS = os.Getenv("MOYNALOG_INSECURE_TLS") == "true"

	conf.incomeName = os.Getenv("MOYNALOG_INCOME_NAME")
	if raw := os.Getenv("MOYNALOG_INCOME_PRICE"); raw != "" {
		price, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			panic("MOYNALOG_INCOME_PRICE must be an integer amount of rubles: " + err.Error())
		}
		conf.incomePrice = price
	}

	conf.reportCronSpec = os.Getenv("MOYNALOG_REPORT_CRON")
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		panic("environment variable " + key + " is not set")
	}
	return value
}

func Email() string {
	return conf.email
}

func Inn() string {
	return conf.inn
}

func Password() string {
	return conf.password
}

func IsInsecureTLS() bool {
	return conf.insecureTLS
}

// IncomeName и IncomePrice описывают доход, который нужно
// зарегистрировать при запуске; пустое имя отключает регистрацию.
func IncomeName() string {
	return conf.incomeName
}

func IncomePrice() int64 {
	return conf.incomePrice
}

// ReportCronSpec - расписание отчёта за прошлый день; пустая строка
// отключает планировщик.
func ReportCronSpec() string {
	return conf.reportCronSpec
}
