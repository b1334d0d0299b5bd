package util

// TransformOrNil returns nil if the value is nil, otherwise applies the transform function.
//
// This helper is commonly used when applying optional configuration
// overrides, where an absent field means "keep the default".
//
// Example:
//
//	if v := util.TransformOrNil(cfg.MinRatePerSecond, func(r int64) any { return r }); v != nil {
//		policy.MinRatePerSecond = v.(int64)
//	}
func TransformOrNil[T any](value *T, transform func(T) any) any {
	if value == nil {
		return nil
	}
	return transform(*value)
}
