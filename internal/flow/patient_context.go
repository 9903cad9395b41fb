package flow

// Helpers for reading loosely-typed patient context values. The context
// arrives as decoded JSON, so numbers are float64 and every field is
// optional.

func contextString(pc map[string]any, key, fallback string) string {
	if v, ok := pc[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func contextStringPtr(pc map[string]any, key string) *string {
	if v, ok := pc[key].(string); ok && v != "" {
		return &v
	}
	return nil
}

func contextFloatPtr(pc map[string]any, key string) *float64 {
	switch v := pc[key].(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	}
	return nil
}

func contextInt(pc map[string]any, key string, fallback int) int {
	switch v := pc[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}

func contextIntPtr(pc map[string]any, key string) *int {
	switch v := pc[key].(type) {
	case float64:
		n := int(v)
		return &n
	case int:
		return &v
	}
	return nil
}

func contextBool(pc map[string]any, key string, fallback bool) bool {
	if v, ok := pc[key].(bool); ok {
		return v
	}
	return fallback
}
