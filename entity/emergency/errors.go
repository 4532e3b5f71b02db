package emergency

import "errors"

var (
	// 路线上存在更高优先级（或对重试请求而言同等优先级）的抢占，请求进入等待队列
	ErrPreempted = errors.New("route held by an override that cannot be replaced")
	// 未知事件类型，按缺省优先级处理（非致命）
	ErrUnknownEmergencyType = errors.New("unknown emergency type")
	// 请求非法（路线为空、路口不存在等）
	ErrInvalidRequest = errors.New("invalid emergency request")
	// 抢占ID不存在或已结束
	ErrUnknownOverride = errors.New("unknown or finished override")
)
