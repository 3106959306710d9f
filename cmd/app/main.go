package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"moynalog-client/internal/config"
	"moynalog-client/internal/moynalog"
	"moynalog-client/utils"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	config.InitConfig()

	logger := slog.With("run", uuid.NewString())
	slog.SetDefault(logger)

	var opts []moynalog.Option
	if config.IsInsecureTLS() {
		slog.Warn("TLS certificate verification is DISABLED")
		opts = append(opts, moynalog.WithInsecureTLS())
	}

	client, err := moynalog.New(config.Email(), config.Inn(), config.Password(), opts...)
	if err != nil {
		if errors.Is(err, moynalog.ErrServiceUnavailable) {
			slog.Error("FNS portal is under maintenance, try again later")
			os.Exit(1)
		}
		panic(err)
	}
	slog.Info("Moynalog client initialized", "inn", utils.MaskHalf(config.Inn()))

	summary, err := client.Summary(ctx)
	if err != nil {
		panic(err)
	}
	slog.Info("Incomes summary fetched", "summary", summary)

	if config.IncomeName() != "" {
		receiptUUID, err := client.CreateReceipt(ctx, moynalog.CreateReceiptParams{
			Name:     config.IncomeName(),
			Price:    config.IncomePrice(),
			Download: true,
		})
		if err != nil {
			panic(err)
		}
		slog.Info("Income registered", "uuid", receiptUUID, "url", client.ReceiptURL(receiptUUID))
	}

	if config.ReportCronSpec() == "" {
		return
	}

	scheduler := setupDailyReport(client)
	scheduler.Start()
	defer scheduler.Stop()

	<-ctx.Done()
	slog.Info("Shutting down")
}

// setupDailyReport настраивает ежедневный отчёт: операции и прибыль за
// прошлый день. Клиент не рассчитан на конкурентные вызовы, поэтому
// затянувшийся отчёт не должен пересекаться со следующим тиком.
func setupDailyReport(client *moynalog.Client) *cron.Cron {
	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))

	_, err := scheduler.AddFunc(config.ReportCronSpec(), func() {
		ctx := context.Background()
		operations, err := client.PreviousDayHistory(ctx, moynalog.HistoryOptions{})
		if err != nil {
			slog.Error("Failed to fetch previous day history", "error", err)
			return
		}
		slog.Info("Previous day report",
			"operations", len(operations),
			"profit", moynalog.Profit(operations).String())
	})
	if err != nil {
		panic(err)
	}

	return scheduler
}
