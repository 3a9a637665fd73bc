package webhook_controller

import "math"

// minorUnitDivisor converts gateway amounts in the currency's smallest unit to
// major units. All supported currencies use two decimal places.
const minorUnitDivisor = 100

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func minorToMajor(minor int64) float64 {
	return round2(float64(minor) / minorUnitDivisor)
}

// computePlatformNet derives the platform's net revenue on a payment: the
// service fee charged to the guest plus the commission taken from the realtor,
// minus what the gateway kept.
func computePlatformNet(serviceFee, commission, gatewayFee float64) float64 {
	return round2(serviceFee + commission - gatewayFee)
}
