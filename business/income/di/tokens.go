// Package di contains dependency injection tokens for the income context.
package di

import (
	"github.com/fd1az/starfire-income/business/income/app"
	"github.com/fd1az/starfire-income/business/income/infra/console"
	"github.com/fd1az/starfire-income/business/income/infra/pricefile"
	"github.com/fd1az/starfire-income/business/income/infra/tcp"
	"github.com/fd1az/starfire-income/internal/di"
	"github.com/fd1az/starfire-income/internal/wsfeed"
)

// Public service tokens - exposed to other modules
var (
	IncomeService = di.NewToken[*app.IncomeService]("income.IncomeService")
	EventFeed     = di.NewToken[*wsfeed.Hub]("income.EventFeed")
)

// Private dependency tokens - internal to income module
var (
	Registry    = di.NewToken[*tcp.Registry]("income:registry")
	Publisher   = di.NewToken[*app.PriceSyncPublisher]("income:publisher")
	PriceSource = di.NewToken[*pricefile.Source]("income:priceSource")
	Reporter    = di.NewToken[*console.Reporter]("income:reporter")
	Notifier    = di.NewToken[app.Notifier]("income:notifier")
)

// Helper functions for type-safe access
func GetIncomeService(c di.ServiceRegistry) *app.IncomeService {
	return di.GetToken(c, IncomeService)
}

func GetEventFeed(c di.ServiceRegistry) *wsfeed.Hub {
	return di.GetToken(c, EventFeed)
}

func GetRegistry(c di.ServiceRegistry) *tcp.Registry {
	return di.GetToken(c, Registry)
}

func GetPublisher(c di.ServiceRegistry) *app.PriceSyncPublisher {
	return di.GetToken(c, Publisher)
}

func GetPriceSource(c di.ServiceRegistry) *pricefile.Source {
	return di.GetToken(c, PriceSource)
}

func GetReporter(c di.ServiceRegistry) *console.Reporter {
	return di.GetToken(c, Reporter)
}

func GetNotifier(c di.ServiceRegistry) app.Notifier {
	return di.GetToken(c, Notifier)
}
