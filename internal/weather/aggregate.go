package weather

import "time"

// AggregateReadings combines multiple provider readings into a single Weather.
// Numeric fields are averaged; conditions are selected by majority (or first if tied).
// Empty readings are listed as contributors but do not take part in averaging;
// when no reading carries data the result is marked Empty.
func AggregateReadings(loc Location, readings []ProviderReading) Weather {
	if len(readings) == 0 {
		return Weather{
			Location:  loc,
			Timestamp: time.Now().UTC(),
			Empty:     true,
			Condition: ConditionUnknown,
		}
	}

	var (
		sumTemp     float64
		sumHumidity float64
		sumWind     float64
		sumPressure float64
		sumPrecip   float64
		n           int
	)

	conditionCounts := make(map[Condition]int)
	providers := make([]ProviderContribution, 0, len(readings))
	var newestTS time.Time
	bestCond := ConditionUnknown
	bestCount := 0

	for _, r := range readings {
		providers = append(providers, ProviderContribution{
			ProviderName: r.ProviderName,
			Timestamp:    r.Timestamp,
		})
		if r.Empty {
			continue
		}
		n++

		sumTemp += r.TemperatureC
		sumHumidity += r.HumidityPct
		sumWind += r.WindSpeedMS
		sumPressure += r.PressureHpa
		sumPrecip += r.PrecipMm

		// Majority condition; strict comparison keeps the first seen on ties.
		conditionCounts[r.Condition]++
		if conditionCounts[r.Condition] > bestCount {
			bestCount = conditionCounts[r.Condition]
			bestCond = r.Condition
		}

		if r.Timestamp.After(newestTS) {
			newestTS = r.Timestamp
		}
	}

	if newestTS.IsZero() {
		newestTS = time.Now().UTC()
	}

	if n == 0 {
		return Weather{
			Location:  loc,
			Timestamp: newestTS,
			Empty:     true,
			Condition: ConditionUnknown,
			Providers: providers,
		}
	}

	count := float64(n)
	return Weather{
		Location:    loc,
		Timestamp:   newestTS,
		Temperature: sumTemp / count,
		Humidity:    sumHumidity / count,
		WindSpeed:   sumWind / count,
		Pressure:    sumPressure / count,
		PrecipMM:    sumPrecip / count,
		Condition:   bestCond,
		Providers:   providers,
	}
}
