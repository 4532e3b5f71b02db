package timing

import "errors"

var (
	// 配置加载阶段的致命错误：饱和流量非正、最小绿灯大于最大绿灯等
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// 单步计算中的可恢复错误：截断后剩余红灯时间为负，该路口本步跳过
	ErrConfiguration = errors.New("configuration error")
)
