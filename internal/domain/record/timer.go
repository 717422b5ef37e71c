package record

import "time"

// Measure 执行 fn 并返回其结果与墙钟耗时（毫秒）。无论成功失败都会读取时钟。
func Measure[T any](fn func() (T, error)) (T, float64, error) {
	start := time.Now()
	out, err := fn()
	return out, sinceMs(start), err
}

// MeasureErr 同 Measure，用于只返回 error 的操作
func MeasureErr(fn func() error) (float64, error) {
	start := time.Now()
	err := fn()
	return sinceMs(start), err
}

func sinceMs(start time.Time) float64 {
	ms := float64(time.Since(start)) / float64(time.Millisecond)
	if ms < 0 {
		return 0
	}
	return ms
}
