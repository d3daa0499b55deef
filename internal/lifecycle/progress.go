package lifecycle

import "time"

// Variant selects which 3-step progress strip a status belongs to: the
// outbound leg of the rental or the return leg.
type Variant string

const (
	VariantOutbound Variant = "outbound"
	VariantReturn   Variant = "return"
)

// Step positions within a variant.  Every variant has exactly three steps.
const (
	StepAccepted = 0
	StepOnTheWay = 1
	StepArrived  = 2
)

var outboundLabels = [3]string{"Order Accepted", "On the Way", "Delivered"}
var returnLabels = [3]string{"Return Accepted", "On the Way", "Returned"}

// StepLabels returns the display vocabulary for a variant.
func StepLabels(v Variant) [3]string {
	if v == VariantReturn {
		return returnLabels
	}
	return outboundLabels
}

// Progress is the projection of a booking status onto a 3-step strip.
type Progress struct {
	Variant Variant
	Step    int
	Label   string
}

// ProgressFor maps a status to its progress strip position.  The second
// return value is false for statuses that have no strip (a request that was
// never accepted, or a rejected booking).
//
// For pickup-method bookings there is no transit leg: the middle step stands
// for "handover pending" and is occupied only between acceptance and the
// verified pickup code.
func ProgressFor(status Status, method DeliveryMethod) (Progress, bool) {
	var v Variant
	var step int
	switch status {
	case StatusAccepted:
		v, step = VariantOutbound, StepAccepted
		if method == MethodPickup {
			step = StepOnTheWay // waiting on the in-person handover
		}
	case StatusPickedUp:
		v, step = VariantOutbound, StepOnTheWay
	case StatusDelivered, StatusInUse:
		v, step = VariantOutbound, StepArrived
	case StatusReturnRequested, StatusReturnAccepted:
		v, step = VariantReturn, StepAccepted
	case StatusReturnPickedUp:
		v, step = VariantReturn, StepOnTheWay
	case StatusReturned, StatusCompleted:
		v, step = VariantReturn, StepArrived
	default:
		return Progress{}, false
	}
	return Progress{Variant: v, Step: step, Label: StepLabels(v)[step]}, true
}

// InTransit reports whether a booking status represents a simulated courier
// leg that the transit tracker should be driving.
func InTransit(status Status, method DeliveryMethod) bool {
	if method != MethodDelivery {
		return false
	}
	return status == StatusPickedUp || status == StatusReturnPickedUp
}

// TransitPosition computes the simulated fraction of the route covered at
// instant now, for a leg that started at start and lasts duration.  It is a
// pure function of its inputs so it can be recomputed on every request
// without shared state.  The result is clamped to [0, 1].
func TransitPosition(start, now time.Time, duration time.Duration) float64 {
	if duration <= 0 || !now.After(start) {
		return 0
	}
	elapsed := now.Sub(start)
	if elapsed >= duration {
		return 1
	}
	return float64(elapsed) / float64(duration)
}
