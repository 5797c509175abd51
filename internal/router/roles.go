package router

// Role tags a worker with a specialization. A worker may hold several roles;
// every specialized worker is also general-purpose so specialization can
// never starve generic work.
type Role int

const (
	RoleGeneral Role = iota
	RoleQuick
	RoleNativeTool
	RoleModelBased
	RoleBulkConversion
)

func (r Role) String() string {
	switch r {
	case RoleQuick:
		return "quick_operations"
	case RoleNativeTool:
		return "heavy_native_tool"
	case RoleModelBased:
		return "model_based"
	case RoleBulkConversion:
		return "bulk_conversion"
	default:
		return "general_purpose"
	}
}

// specializationThreshold is the minimum pool size at which workers get
// dedicated roles. Below it there is not enough supply to specialize safely.
const specializationThreshold = 4

// rolesForIndex returns the roles a worker at the given list index holds in
// a pool of the given size. The first slots go to quick operations so status
// probes are never queued behind long conversions.
func rolesForIndex(index, poolSize int) []Role {
	if poolSize < specializationThreshold {
		return []Role{RoleGeneral}
	}
	switch {
	case index < 2:
		return []Role{RoleQuick, RoleGeneral}
	case index == 2:
		return []Role{RoleNativeTool, RoleGeneral}
	case index == 3:
		return []Role{RoleModelBased, RoleGeneral}
	default:
		return []Role{RoleBulkConversion, RoleGeneral}
	}
}

// Priority orders submissions. It is accepted and threaded through for
// future weighting; the shipped selection algorithm does not reorder based
// on it.
type Priority int

const (
	PriorityImmediate Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityImmediate:
		return "immediate"
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "normal"
	}
}

// ParsePriority maps a priority token to its level, defaulting to normal.
func ParsePriority(value string) Priority {
	switch value {
	case "immediate":
		return PriorityImmediate
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityNormal
	}
}
