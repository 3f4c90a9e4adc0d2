package geo

import "math"

// cardinals are the eight compass points used for wind direction labels.
var cardinals = []string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

// WindFromComponents converts U (eastward) and V (northward) wind components
// in m/s to speed and meteorological direction (degrees the wind blows from).
func WindFromComponents(u, v float64) (speed, direction float64) {
	speed = math.Sqrt(u*u + v*v)
	mathDeg := math.Atan2(v, u) * 180 / math.Pi
	direction = math.Mod(270-mathDeg, 360)
	if direction < 0 {
		direction += 360
	}
	return speed, direction
}

// Cardinal maps a direction in degrees to one of the eight compass points.
func Cardinal(degrees float64) string {
	idx := int(math.Round(degrees/45)) % 8
	if idx < 0 {
		idx += 8
	}
	return cardinals[idx]
}

// KelvinToCelsius converts a temperature from Kelvin.
func KelvinToCelsius(k float64) float64 { return k - 273.15 }

// CelsiusToFahrenheit converts a temperature from Celsius.
func CelsiusToFahrenheit(c float64) float64 { return c*9/5 + 32 }

// MSToKMH converts a speed from m/s to km/h.
func MSToKMH(ms float64) float64 { return ms * 3.6 }

// PaToHPa converts a pressure from pascals to hectopascals.
func PaToHPa(pa float64) float64 { return pa / 100 }

// RelativeHumidity derives relative humidity in percent from specific
// humidity (kg/kg), temperature (K), and surface pressure (Pa), using
// the Magnus saturation vapor pressure approximation. Clamped to
// [0, 100].
func RelativeHumidity(specificHumidity, tempK, pressurePa float64) float64 {
	if specificHumidity <= 0 || pressurePa <= 0 {
		return 0
	}
	vapor := specificHumidity * pressurePa / (0.622 + 0.378*specificHumidity)
	tempC := KelvinToCelsius(tempK)
	saturation := 611.2 * math.Exp(17.67*tempC/(tempC+243.5))
	rh := 100 * vapor / saturation
	if rh < 0 {
		return 0
	}
	if rh > 100 {
		return 100
	}
	return rh
}
