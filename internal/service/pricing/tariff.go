package pricing

import (
	"context"
	"errors"
	"fmt"
	"math"
)

const averageSpeedKmh = 50 // средняя скорость в пути

var ErrInvalidInput = errors.New("invalid pricing input")

// Tariff prices a pooled ride: base + distance + time + luggage, discounted
// for every co-rider up to MaxDiscount.
type Tariff struct {
	BaseFare        float64
	RatePerKm       float64
	RatePerMin      float64
	LuggageFee      float64
	SharingDiscount float64 // per additional rider
	MaxDiscount     float64
}

func DefaultTariff() Tariff {
	return Tariff{
		BaseFare:        300,
		RatePerKm:       100,
		RatePerMin:      50,
		LuggageFee:      50,
		SharingDiscount: 0.15,
		MaxDiscount:     0.45,
	}
}

type TariffPricer struct {
	tariff Tariff
}

func New(t Tariff) *TariffPricer {
	return &TariffPricer{tariff: t}
}

// Price returns the fare for one rider in a pool of poolSize, rounded to cents.
func (p *TariffPricer) Price(ctx context.Context, distanceKm float64, poolSize, luggage int) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if distanceKm < 0 || math.IsNaN(distanceKm) || math.IsInf(distanceKm, 0) {
		return 0, fmt.Errorf("%w: distance %v", ErrInvalidInput, distanceKm)
	}
	if poolSize < 1 {
		return 0, fmt.Errorf("%w: pool size %d", ErrInvalidInput, poolSize)
	}
	if luggage < 0 {
		return 0, fmt.Errorf("%w: luggage %d", ErrInvalidInput, luggage)
	}

	t := p.tariff
	// Формула: базовая ставка + км + минуты + багаж
	fare := t.BaseFare +
		distanceKm*t.RatePerKm +
		float64(Duration(distanceKm))*t.RatePerMin +
		float64(luggage)*t.LuggageFee

	fare *= 1 - p.discount(poolSize)

	return math.Round(fare*100) / 100, nil
}

func (p *TariffPricer) discount(poolSize int) float64 {
	d := p.tariff.SharingDiscount * float64(poolSize-1)
	return math.Max(0, math.Min(d, p.tariff.MaxDiscount))
}

// Duration is the rough trip time in whole minutes.
func Duration(distanceKm float64) int {
	if distanceKm <= 0 {
		return 0
	}
	// Время (в минутах) = (Расстояние / Скорость) * 60
	return int(math.Ceil(distanceKm / averageSpeedKmh * 60))
}
