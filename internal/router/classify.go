package router

// Category buckets an action by the kind of work it performs.
type Category int

const (
	CategoryGeneric Category = iota
	CategoryStatusCheck
	CategoryFileInspection
	CategoryNativeTool
	CategoryModelBased
	CategoryBulkConversion
)

func (c Category) String() string {
	switch c {
	case CategoryStatusCheck:
		return "status_check"
	case CategoryFileInspection:
		return "file_inspection"
	case CategoryNativeTool:
		return "native_tool"
	case CategoryModelBased:
		return "model_based"
	case CategoryBulkConversion:
		return "bulk_conversion"
	default:
		return "generic"
	}
}

// Quick reports whether the category must never be starved behind
// long-running work.
func (c Category) Quick() bool {
	return c == CategoryStatusCheck || c == CategoryFileInspection
}

// Membership is by exact action match; unknown actions fall into the generic
// category.
var actionCategories = map[string]Category{
	// Quick status probes.
	"ping":         CategoryStatusCheck,
	"get_status":   CategoryStatusCheck,
	"capabilities": CategoryStatusCheck,
	"version":      CategoryStatusCheck,

	// Fast file inspection.
	"probe_media":  CategoryFileInspection,
	"media_info":   CategoryFileInspection,
	"inspect_file": CategoryFileInspection,
	"scan_tracks":  CategoryFileInspection,

	// Heavy native-tool invocations.
	"extract_audio":     CategoryNativeTool,
	"extract_subtitles": CategoryNativeTool,
	"remux":             CategoryNativeTool,
	"rip_title":         CategoryNativeTool,

	// Long-running model-based operations.
	"transcribe":        CategoryModelBased,
	"identify_content":  CategoryModelBased,
	"detect_commentary": CategoryModelBased,
	"search_subtitles":  CategoryModelBased,

	// Bulk conversions.
	"encode":        CategoryBulkConversion,
	"convert":       CategoryBulkConversion,
	"batch_convert": CategoryBulkConversion,
}

// Classify maps an action name to its task category.
func Classify(action string) Category {
	if category, ok := actionCategories[action]; ok {
		return category
	}
	return CategoryGeneric
}

// PreferredRole returns the worker role best suited to the category.
func (c Category) PreferredRole() Role {
	switch c {
	case CategoryStatusCheck, CategoryFileInspection:
		return RoleQuick
	case CategoryNativeTool:
		return RoleNativeTool
	case CategoryModelBased:
		return RoleModelBased
	case CategoryBulkConversion:
		return RoleBulkConversion
	default:
		return RoleGeneral
	}
}
