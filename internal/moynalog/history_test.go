package moynalog

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

const historyHeader = "ID;Дата;Наименование;Стоимость;Налог;Налоговый период;Статус;Тип клиента;ИНН клиента;Наименование клиента;Код партнера\n"

func TestParseOperations(t *testing.T) {
	csv := historyHeader +
		`"1";01.02.2023;"Name";100,50;6,03;X;Зарегистрирован;FL;;John;PARTNER1`

	ops, err := parseOperations([]byte(csv), false)
	require.NoError(t, err)
	require.Len(t, ops, 1)

	op := ops[0]
	assert.Equal(t, `"1"`, op.ID)
	assert.Equal(t, time.Date(2023, time.February, 1, 0, 0, 0, 0, time.UTC), op.Date)
	assert.Equal(t, "Name", op.Name, "quotes must be stripped from the name")
	assert.True(t, op.Price.Equal(decimal.RequireFromString("100.50")), "price = %s", op.Price)
	assert.True(t, op.Tax.Equal(decimal.RequireFromString("6.03")), "tax = %s", op.Tax)
	assert.Equal(t, StatusRegistered, op.Status)
	assert.Equal(t, "FL", op.Customer.Type)
	assert.Empty(t, op.Customer.INN)
	assert.Equal(t, "John", op.Customer.Name)
	assert.Equal(t, "PARTNER1", op.Partner)
}

func TestParseOperationsHideCancelled(t *testing.T) {
	csv := historyHeader +
		"1;01.02.2023;A;10,00;0,40;X;Зарегистрирован;FL;;;\n" +
		"2;02.02.2023;B;20,00;0,80;X;Аннулирован;FL;;;\n" +
		"3;03.02.2023;C;30,00;1,20;X;Зарегистрирован;FL;;;\n"

	ops, err := parseOperations([]byte(csv), true)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, "1", ops[0].ID)
	assert.Equal(t, "3", ops[1].ID, "surviving rows keep server order")

	ops, err = parseOperations([]byte(csv), false)
	require.NoError(t, err)
	assert.Len(t, ops, 3)
}

func TestParseOperationsFieldCount(t *testing.T) {
	csv := historyHeader +
		"1;01.02.2023;A;10,00;0,40;X;Зарегистрирован;FL;;;\n" +
		"2;02.02.2023;B;20,00\n"

	_, err := parseOperations([]byte(csv), false)

	var malformed *MalformedRecordError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, 2, malformed.Row)
	assert.Equal(t, 4, malformed.Fields)
}

func TestParseOperationsBadValues(t *testing.T) {
	tests := []struct {
		name string
		row  string
	}{
		{"bad date", "1;31.02.2023;A;10,00;0,40;X;Зарегистрирован;FL;;;"},
		{"bad price", "1;01.02.2023;A;ten;0,40;X;Зарегистрирован;FL;;;"},
		{"bad tax", "1;01.02.2023;A;10,00;-;X;Зарегистрирован;FL;;;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseOperations([]byte(historyHeader+tt.row), false)
			var malformed *MalformedRecordError
			require.ErrorAs(t, err, &malformed)
			assert.Equal(t, 1, malformed.Row)
		})
	}
}

func TestParseOperationsWindows1251(t *testing.T) {
	csv := historyHeader +
		"1;01.02.2023;Консультация;100,50;6,03;X;Зарегистрирован;FL;;Иван;\n"

	encoded, _, err := transform.Bytes(charmap.Windows1251.NewEncoder(), []byte(csv))
	require.NoError(t, err)

	ops, err := parseOperations(encoded, false)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "Консультация", ops[0].Name)
	assert.Equal(t, StatusRegistered, ops[0].Status)
	assert.Equal(t, "Иван", ops[0].Customer.Name)
}

func TestProfit(t *testing.T) {
	ops := []Operation{
		{Price: decimal.RequireFromString("100.50"), Status: StatusRegistered},
		{Price: decimal.RequireFromString("200.00"), Status: StatusCancelled},
		{Price: decimal.RequireFromString("49.50"), Status: StatusRegistered},
		{Price: decimal.RequireFromString("1000.00"), Status: "Отклонён"},
	}

	assert.True(t, Profit(ops).Equal(decimal.RequireFromString("150")), "got %s", Profit(ops))
	assert.True(t, Profit(nil).IsZero())
}

func TestStartOfDay(t *testing.T) {
	now := time.Date(2023, time.March, 15, 18, 42, 7, 123, time.Local)
	assert.Equal(t, time.Date(2023, time.March, 15, 0, 0, 0, 0, time.Local), startOfDay(now))
}

func TestStartOfWeek(t *testing.T) {
	// 15.03.2023 - среда
	wednesday := time.Date(2023, time.March, 15, 13, 0, 0, 0, time.Local)
	assert.Equal(t, time.Date(2023, time.March, 13, 0, 0, 0, 0, time.Local), startOfWeek(wednesday))

	// воскресенье относится к начавшейся в понедельник неделе
	sunday := time.Date(2023, time.March, 19, 1, 0, 0, 0, time.Local)
	assert.Equal(t, time.Date(2023, time.March, 13, 0, 0, 0, 0, time.Local), startOfWeek(sunday))

	monday := time.Date(2023, time.March, 13, 0, 0, 0, 0, time.Local)
	assert.Equal(t, monday, startOfWeek(monday))
}

func TestPreviousDayRange(t *testing.T) {
	now := time.Date(2023, time.March, 1, 10, 30, 0, 0, time.Local)
	from, to := previousDayRange(now)
	assert.Equal(t, time.Date(2023, time.February, 28, 0, 0, 0, 0, time.Local), from)
	assert.Equal(t, time.Date(2023, time.March, 1, 0, 0, 0, 0, time.Local), to)
}

func TestPreviousWeekRange(t *testing.T) {
	now := time.Date(2023, time.March, 15, 13, 0, 0, 0, time.Local)
	from, to := previousWeekRange(now)
	assert.Equal(t, time.Date(2023, time.March, 6, 0, 0, 0, 0, time.Local), from)
	assert.Equal(t, time.Date(2023, time.March, 13, 0, 0, 0, 0, time.Local), to)
}

func TestPreviousMonthRange(t *testing.T) {
	tests := []struct {
		name     string
		now      time.Time
		from, to time.Time
	}{
		{
			name: "март, обычный февраль позади",
			now:  time.Date(2023, time.March, 1, 9, 0, 0, 0, time.Local),
			from: time.Date(2023, time.February, 1, 0, 0, 0, 0, time.Local),
			to:   time.Date(2023, time.March, 1, 0, 0, 0, 0, time.Local),
		},
		{
			name: "март високосного года",
			now:  time.Date(2024, time.March, 1, 9, 0, 0, 0, time.Local),
			from: time.Date(2024, time.February, 1, 0, 0, 0, 0, time.Local),
			to:   time.Date(2024, time.March, 1, 0, 0, 0, 0, time.Local),
		},
		{
			name: "январь, переход через год",
			now:  time.Date(2024, time.January, 15, 23, 59, 0, 0, time.Local),
			from: time.Date(2023, time.December, 1, 0, 0, 0, 0, time.Local),
			to:   time.Date(2024, time.January, 1, 0, 0, 0, 0, time.Local),
		},
		{
			name: "после 31-дневного месяца",
			now:  time.Date(2023, time.August, 20, 12, 0, 0, 0, time.Local),
			from: time.Date(2023, time.July, 1, 0, 0, 0, 0, time.Local),
			to:   time.Date(2023, time.August, 1, 0, 0, 0, 0, time.Local),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to := previousMonthRange(tt.now)
			assert.Equal(t, tt.from, from)
			assert.Equal(t, tt.to, to)
		})
	}
}

func TestEscapePortalTime(t *testing.T) {
	msk := time.FixedZone("MSK", 3*60*60)
	ts := time.Date(2023, time.March, 15, 13, 45, 9, 0, msk)
	assert.Equal(t, "2023-03-15T13:45:09%2B03:00", escapePortalTime(ts))
}
