package sweep

import (
	"math/rand/v2"
	"time"

	"github.com/BearBump/TrackRisk/config"
	"github.com/BearBump/TrackRisk/internal/models"
)

// Rand зовут конкурентно, реализация должна это выдерживать.
type Rand interface {
	Intn(n int) int
}

// sharedRand ходит в общий генератор math/rand/v2: он безопасен из многих
// горутин, а planner зовут и sweep, и bulk check.
type sharedRand struct{}

func (sharedRand) Intn(n int) int { return rand.IntN(n) }

type PlannerConfig struct {
	DeliveredDelay time.Duration // default: 365 days
	RedDelay       time.Duration // default: 30 minutes

	InTransitMinDelay time.Duration // default: 60 minutes
	InTransitMaxDelay time.Duration // default: 120 minutes

	UnknownDelay time.Duration // default: 90 minutes

	Backoff1 time.Duration // default: 5 minutes
	Backoff2 time.Duration // default: 15 minutes
	Backoff3 time.Duration // default: 30 minutes
	Backoff4 time.Duration // default: 60 minutes
}

func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		DeliveredDelay: 365 * 24 * time.Hour,
		RedDelay:       30 * time.Minute,

		InTransitMinDelay: 60 * time.Minute,
		InTransitMaxDelay: 120 * time.Minute,

		UnknownDelay: 90 * time.Minute,

		Backoff1: 5 * time.Minute,
		Backoff2: 15 * time.Minute,
		Backoff3: 30 * time.Minute,
		Backoff4: 60 * time.Minute,
	}
}

// Planner решает, когда проверять заказ в следующий раз.
type Planner struct {
	cfg PlannerConfig
	r   Rand
}

func NewPlanner(cfg PlannerConfig, r Rand) *Planner {
	def := DefaultPlannerConfig()
	orDefault := func(v *time.Duration, d time.Duration) {
		if *v <= 0 {
			*v = d
		}
	}
	orDefault(&cfg.DeliveredDelay, def.DeliveredDelay)
	orDefault(&cfg.RedDelay, def.RedDelay)
	orDefault(&cfg.InTransitMinDelay, def.InTransitMinDelay)
	orDefault(&cfg.InTransitMaxDelay, def.InTransitMaxDelay)
	if cfg.InTransitMaxDelay < cfg.InTransitMinDelay {
		cfg.InTransitMaxDelay = cfg.InTransitMinDelay
	}
	orDefault(&cfg.UnknownDelay, def.UnknownDelay)
	orDefault(&cfg.Backoff1, def.Backoff1)
	orDefault(&cfg.Backoff2, def.Backoff2)
	orDefault(&cfg.Backoff3, def.Backoff3)
	orDefault(&cfg.Backoff4, def.Backoff4)
	if r == nil {
		r = sharedRand{}
	}
	return &Planner{cfg: cfg, r: r}
}

func DefaultPlanner() *Planner {
	return NewPlanner(DefaultPlannerConfig(), nil)
}

// NextCheckDelay: delivered почти не проверяем, red чаще остальных,
// в пути с джиттером, чтобы проверки не сбивались в пачки.
func (p *Planner) NextCheckDelay(status models.TrackingStatus, risk models.RiskLevel) time.Duration {
	switch {
	case status == models.StatusDelivered:
		return p.cfg.DeliveredDelay
	case risk == models.RiskRed:
		return p.cfg.RedDelay
	case status == models.StatusInTransit, status == models.StatusOutForDelivery:
		min := p.cfg.InTransitMinDelay
		max := p.cfg.InTransitMaxDelay
		if max == min {
			return min
		}
		secMin := int(min.Seconds())
		secMax := int(max.Seconds())
		return time.Duration(secMin+p.r.Intn(secMax-secMin+1)) * time.Second
	default:
		return p.cfg.UnknownDelay
	}
}

func (p *Planner) BackoffDelay(nextFailCount int32) time.Duration {
	switch {
	case nextFailCount <= 1:
		return p.cfg.Backoff1
	case nextFailCount == 2:
		return p.cfg.Backoff2
	case nextFailCount == 3:
		return p.cfg.Backoff3
	default:
		return p.cfg.Backoff4
	}
}

// NextCheckAt: backoff для неуспешной проверки, иначе по статусу/риску.
func (p *Planner) NextCheckAt(now time.Time, res models.NormalizedTracking, failCount int32) time.Time {
	if res.Error != nil {
		return now.Add(p.BackoffDelay(failCount))
	}
	return now.Add(p.NextCheckDelay(res.Status, res.RiskLevel))
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// PlannerConfigFrom переводит секунды из конфига в PlannerConfig. Нули
// заменяются дефолтами в NewPlanner.
func PlannerConfigFrom(cfg config.TrackRiskConfig) PlannerConfig {
	return PlannerConfig{
		DeliveredDelay:    seconds(cfg.WorkerNextCheckDeliveredSeconds),
		RedDelay:          seconds(cfg.WorkerNextCheckRedSeconds),
		InTransitMinDelay: seconds(cfg.WorkerNextCheckInTransitMinSeconds),
		InTransitMaxDelay: seconds(cfg.WorkerNextCheckInTransitMaxSeconds),
		UnknownDelay:      seconds(cfg.WorkerNextCheckUnknownSeconds),
		Backoff1:          seconds(cfg.WorkerBackoff1Seconds),
		Backoff2:          seconds(cfg.WorkerBackoff2Seconds),
		Backoff3:          seconds(cfg.WorkerBackoff3Seconds),
		Backoff4:          seconds(cfg.WorkerBackoff4Seconds),
	}
}
