package moynalog

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// Статусы операций в том виде, в котором их отдаёт CSV-выгрузка портала.
const (
	StatusRegistered = "Зарегистрирован"
	StatusCancelled  = "Аннулирован"
)

// historyFieldCount - число полей в строке CSV-выгрузки. Поле с
// индексом 5 порталом заполняется, но назначения не имеет и при
// разборе пропускается.
const historyFieldCount = 11

// historyEpoch - нижняя граница истории по умолчанию.
var historyEpoch = time.Unix(100000, 0)

// History запрашивает CSV-выгрузку операций за период и разбирает её в
// список Operation. Порядок строк задаётся порталом через sortBy и
// локально не пересортировывается.
func (c *Client) History(ctx context.Context, q HistoryQuery) ([]Operation, error) {
	from := q.From
	if from.IsZero() {
		from = historyEpoch
	}
	to := q.To
	if to.IsZero() {
		to = c.now()
	}

	sortBy := "operation_time:desc"
	if q.Ascending {
		sortBy = "operation_time:asc"
	}

	url := fmt.Sprintf("%s%s?from=%s&to=%s&sortBy=%s",
		c.apiURL, salesPath, escapePortalTime(from), escapePortalTime(to), sortBy)

	body, err := c.doAuthorized(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("history: %w", ErrEmptyResponse)
	}

	return parseOperations(body, q.HideCancelled)
}

// TodayHistory возвращает операции с начала текущего дня.
func (c *Client) TodayHistory(ctx context.Context, opts HistoryOptions) ([]Operation, error) {
	return c.History(ctx, rangeQuery(startOfDay(c.now()), time.Time{}, opts))
}

// WeekHistory возвращает операции с понедельника текущей недели.
func (c *Client) WeekHistory(ctx context.Context, opts HistoryOptions) ([]Operation, error) {
	return c.History(ctx, rangeQuery(startOfWeek(c.now()), time.Time{}, opts))
}

// MonthHistory возвращает операции с первого числа текущего месяца.
func (c *Client) MonthHistory(ctx context.Context, opts HistoryOptions) ([]Operation, error) {
	return c.History(ctx, rangeQuery(startOfMonth(c.now()), time.Time{}, opts))
}

// PreviousDayHistory возвращает операции за вчерашний день.
func (c *Client) PreviousDayHistory(ctx context.Context, opts HistoryOptions) ([]Operation, error) {
	from, to := previousDayRange(c.now())
	return c.History(ctx, rangeQuery(from, to, opts))
}

// PreviousWeekHistory возвращает операции за прошлую неделю, с
// понедельника по понедельник.
func (c *Client) PreviousWeekHistory(ctx context.Context, opts HistoryOptions) ([]Operation, error) {
	from, to := previousWeekRange(c.now())
	return c.History(ctx, rangeQuery(from, to, opts))
}

// PreviousMonthHistory возвращает операции за прошлый календарный месяц.
// Переход через январь и разная длина месяцев учитываются календарной
// арифметикой, а не фиксированным числом дней.
func (c *Client) PreviousMonthHistory(ctx context.Context, opts HistoryOptions) ([]Operation, error) {
	from, to := previousMonthRange(c.now())
	return c.History(ctx, rangeQuery(from, to, opts))
}

// Profit суммирует цены зарегистрированных операций; аннулированные и
// прочие статусы дают ноль. Чистая функция.
func Profit(ops []Operation) decimal.Decimal {
	total := decimal.Zero
	for _, op := range ops {
		if op.Status == StatusRegistered {
			total = total.Add(op.Price)
		}
	}
	return total
}

func rangeQuery(from, to time.Time, opts HistoryOptions) HistoryQuery {
	return HistoryQuery{
		From:          from,
		To:            to,
		Ascending:     opts.Ascending,
		HideCancelled: opts.HideCancelled,
	}
}

// Все границы периодов привязаны к локальной полуночи.

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func startOfWeek(t time.Time) time.Time {
	// time.Weekday считает воскресенье нулём, неделя портала
	// начинается с понедельника.
	offset := (int(t.Weekday()) + 6) % 7
	return startOfDay(t).AddDate(0, 0, -offset)
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func previousDayRange(now time.Time) (from, to time.Time) {
	to = startOfDay(now)
	return to.AddDate(0, 0, -1), to
}

func previousWeekRange(now time.Time) (from, to time.Time) {
	to = startOfWeek(now)
	return to.AddDate(0, 0, -7), to
}

func previousMonthRange(now time.Time) (from, to time.Time) {
	to = startOfMonth(now)
	return to.AddDate(0, -1, 0), to
}

// parseOperations разбирает CSV-выгрузку портала: первая строка -
// заголовок, дальше строки из 11 полей, разделённых ";". Строки с
// неверным числом полей или неразбираемыми значениями дают
// *MalformedRecordError, а не панику по индексу.
func parseOperations(data []byte, hideCancelled bool) ([]Operation, error) {
	text, err := decodeHistoryBody(data)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if len(lines) > 0 {
		lines = lines[1:] // заголовок
	}

	operations := make([]Operation, 0, len(lines))
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		row := i + 1

		fields := strings.Split(line, ";")
		if len(fields) != historyFieldCount {
			return nil, &MalformedRecordError{Row: row, Fields: len(fields)}
		}

		status := fields[6]
		if hideCancelled && status == StatusCancelled {
			continue
		}

		date, err := time.Parse("02.01.2006", fields[1])
		if err != nil {
			return nil, &MalformedRecordError{Row: row, Err: fmt.Errorf("bad date %q: %w", fields[1], err)}
		}
		price, err := parsePortalDecimal(fields[3])
		if err != nil {
			return nil, &MalformedRecordError{Row: row, Err: fmt.Errorf("bad price %q: %w", fields[3], err)}
		}
		tax, err := parsePortalDecimal(fields[4])
		if err != nil {
			return nil, &MalformedRecordError{Row: row, Err: fmt.Errorf("bad tax %q: %w", fields[4], err)}
		}

		operations = append(operations, Operation{
			ID:     fields[0],
			Date:   date,
			Name:   strings.ReplaceAll(fields[2], `"`, ""),
			Price:  price,
			Tax:    tax,
			Status: status,
			Customer: Customer{
				Type: fields[7],
				INN:  fields[8],
				Name: fields[9],
			},
			Partner: fields[10],
		})
	}

	return operations, nil
}

// decodeHistoryBody возвращает текст выгрузки в UTF-8. Портал временами
// отдаёт CSV в Windows-1251; такие тела перекодируются.
func decodeHistoryBody(data []byte) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}
	decoded, _, err := transform.Bytes(charmap.Windows1251.NewDecoder(), data)
	if err != nil {
		return "", fmt.Errorf("failed to decode history body: %w", err)
	}
	return string(decoded), nil
}

// parsePortalDecimal разбирает число с запятой в роли десятичного
// разделителя.
func parsePortalDecimal(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
}

// escapePortalTime форматирует время для query-параметров выгрузки:
// знак "+" в смещении должен быть URL-экранирован.
func escapePortalTime(t time.Time) string {
	return strings.ReplaceAll(formatPortalTime(t), "+", "%2B")
}
