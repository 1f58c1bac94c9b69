package httpapi

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-markets/internal/health"
	"github.com/i474232898/weather-markets/internal/market"
	"github.com/i474232898/weather-markets/internal/payout"
	"github.com/i474232898/weather-markets/internal/settlement"
	"github.com/i474232898/weather-markets/internal/weather"
)

var validate = validator.New()

// HealthReporter probes every provider in the fallback stack.
type HealthReporter interface {
	HealthReport(ctx context.Context) []weather.ProviderHealth
	Summarize(reports []weather.ProviderHealth) weather.ProviderHealth
}

// HealthStatus exposes the settlement-time health record.
type HealthStatus interface {
	Status(ctx context.Context) (health.Status, *health.Record, error)
}

type PendingLister interface {
	Pending(ctx context.Context) ([]market.Market, error)
}

type CreateJob interface {
	Run(ctx context.Context) (market.CreateResult, error)
}

type SettleJob interface {
	Run(ctx context.Context) (settlement.Result, error)
}

// Deps are the handlers' collaborators. Markets, Creator and Settler are nil
// when the contract is not configured; their routes answer 503.
type Deps struct {
	Providers HealthReporter
	Health    HealthStatus
	Registry  *market.Registry
	Markets   PendingLister
	Creator   CreateJob
	Settler   SettleJob
	Now       func() time.Time
}

var errChainUnavailable = fiber.NewError(fiber.StatusServiceUnavailable, "market contract not configured")

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	v1 := app.Group("/api/v1")

	v1.Get("/providers/health", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 10*time.Second)
		defer cancel()

		members := deps.Providers.HealthReport(ctx)
		overall := deps.Providers.Summarize(members)

		resp := fiber.Map{
			"overall":   overall,
			"providers": members,
		}
		if deps.Health != nil {
			status, rec, err := deps.Health.Status(ctx)
			if err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, "failed to read provider health record")
			}
			resp["settlement"] = fiber.Map{
				"status":       status,
				"trafficLight": health.TrafficLight(status),
				"record":       rec,
			}
		}
		return c.JSON(resp)
	})

	v1.Get("/markets/pending", func(c *fiber.Ctx) error {
		if deps.Markets == nil {
			return errChainUnavailable
		}
		markets, err := deps.Markets.Pending(c.UserContext())
		if err != nil {
			return fiber.NewError(fiber.StatusBadGateway, "failed to read markets from contract")
		}

		now := deps.Now().Unix()
		out := make([]pendingMarket, 0, len(markets))
		for _, m := range markets {
			out = append(out, toPendingMarket(m, deps.Registry, now))
		}
		return c.JSON(fiber.Map{"markets": out, "count": len(out)})
	})

	v1.Get("/payout/preview", func(c *fiber.Ctx) error {
		var q previewQuery
		q.bind(c)
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		yes, no, amount, err := q.amounts()
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		side, err := payout.ParseSide(q.Side)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		cur := market.ParseCurrency(q.Currency)
		preview := payout.PotentialPayout(yes, no, amount, side)
		return c.JSON(fiber.Map{
			"payout":          preview.Payout.String(),
			"payoutFormatted": payout.FormatAmount(preview.Payout, cur.Decimals(), 4),
			"newYesPercent":   preview.NewYesPercent,
			"newNoPercent":    preview.NewNoPercent,
			"multiplier":      payout.FormatMultiplier(payout.ImpliedMultiplier(yes, no, side)),
		})
	})

	v1.Get("/cities", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"cities": deps.Registry.Cities()})
	})

	v1.Post("/cities", func(c *fiber.Ctx) error {
		var city market.City
		if err := c.BodyParser(&city); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid city payload")
		}
		city.ID = strings.TrimSpace(strings.ToLower(city.ID))
		if err := validate.Struct(city); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		registered, err := deps.Registry.Register(c.UserContext(), city)
		if err != nil {
			switch {
			case errors.Is(err, market.ErrDuplicateCity):
				return fiber.NewError(fiber.StatusConflict, err.Error())
			case errors.Is(err, market.ErrInvalidCity):
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			return fiber.NewError(fiber.StatusBadGateway, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"city":     registered,
			"cityHash": registered.Hash().Hex(),
		})
	})

	v1.Post("/jobs/create", func(c *fiber.Ctx) error {
		if deps.Creator == nil {
			return errChainUnavailable
		}
		res, err := deps.Creator.Run(c.UserContext())
		if err != nil {
			if errors.Is(err, market.ErrTooManyMarkets) || errors.Is(err, market.ErrNoCitiesConfigured) {
				return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(res)
	})

	v1.Post("/jobs/settle", func(c *fiber.Ctx) error {
		if deps.Settler == nil {
			return errChainUnavailable
		}
		res, err := deps.Settler.Run(c.UserContext())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(res)
	})
}

type pendingMarket struct {
	ID            uint64 `json:"id"`
	City          string `json:"city"`
	CityHash      string `json:"cityHash"`
	ResolveTime   int64  `json:"resolveTime"`
	Threshold     int64  `json:"thresholdTenths"`
	Status        string `json:"status"`
	Currency      string `json:"currency"`
	YesPool       string `json:"yesPool"`
	NoPool        string `json:"noPool"`
	YesPercent    int64  `json:"yesPercent"`
	NoPercent     int64  `json:"noPercent"`
	YesMultiplier string `json:"yesMultiplier"`
	NoMultiplier  string `json:"noMultiplier"`
	ReadyToSettle bool   `json:"readyToSettle"`
}

func toPendingMarket(m market.Market, registry *market.Registry, now int64) pendingMarket {
	yes, no := orZero(m.YesPool), orZero(m.NoPool)
	yesPct, noPct := payout.Percentages(yes, no)

	name := ""
	if c, ok := registry.Lookup(m.CityHash); ok {
		name = c.Name
	}
	return pendingMarket{
		ID:            m.ID,
		City:          name,
		CityHash:      m.CityHash.Hex(),
		ResolveTime:   m.ResolveTimeSec,
		Threshold:     m.ThresholdTenths,
		Status:        string(m.Status(now)),
		Currency:      m.Currency.String(),
		YesPool:       payout.FormatAmount(yes, m.Currency.Decimals(), 4),
		NoPool:        payout.FormatAmount(no, m.Currency.Decimals(), 4),
		YesPercent:    yesPct,
		NoPercent:     noPct,
		YesMultiplier: payout.FormatMultiplier(payout.ImpliedMultiplier(yes, no, payout.Yes)),
		NoMultiplier:  payout.FormatMultiplier(payout.ImpliedMultiplier(yes, no, payout.No)),
		ReadyToSettle: m.ResolveTimeSec <= now,
	}
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// previewQuery holds query parameters for the payout preview. Amounts are
// integers in the token's smallest unit.
type previewQuery struct {
	YesPool  string `validate:"required,numeric"`
	NoPool   string `validate:"required,numeric"`
	Amount   string `validate:"required,numeric"`
	Side     string `validate:"required,oneof=yes no"`
	Currency string `validate:"omitempty,oneof=native stable"`
}

func (q *previewQuery) bind(c *fiber.Ctx) {
	q.YesPool = c.Query("yesPool")
	q.NoPool = c.Query("noPool")
	q.Amount = c.Query("amount")
	q.Side = strings.ToLower(c.Query("side"))
	q.Currency = c.Query("currency")
}

var errNegativeAmount = errors.New("amounts must be non-negative integers")

func (q previewQuery) amounts() (*big.Int, *big.Int, *big.Int, error) {
	var out [3]*big.Int
	for i, s := range []string{q.YesPool, q.NoPool, q.Amount} {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok || v.Sign() < 0 {
			return nil, nil, nil, errNegativeAmount
		}
		out[i] = v
	}
	return out[0], out[1], out[2], nil
}
