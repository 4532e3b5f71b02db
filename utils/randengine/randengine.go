// 随机数引擎，包装了golang.org/x/exp/rand，提供合成交通数据常用的分布
package randengine

import (
	"flag"
	"math"
	"sync"

	"golang.org/x/exp/rand"
)

var (
	seedOffset = flag.Uint64("rand.seed_offset", 0, "seed offset") // 种子偏移量，用于调整随机数生成
)

// Engine 随机数引擎
// 功能：提供可复现的随机数，所有方法线程安全
type Engine struct {
	*rand.Rand            // 底层随机数生成器
	mtx        sync.Mutex // 互斥锁，用于线程安全操作
}

// New 创建随机数引擎
// 参数：seed-随机数种子，实际种子会叠加-rand.seed_offset
func New(seed uint64) *Engine {
	return &Engine{Rand: rand.New(rand.NewSource(seed + *seedOffset))}
}

// Float64Safe 生成[0.0, 1.0)范围内的随机浮点数
func (e *Engine) Float64Safe() float64 {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return e.Float64()
}

// IntnSafe 生成[0, n)范围内的随机整数
func (e *Engine) IntnSafe(n int) int {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return e.Intn(n)
}

// PTrueSafe 以概率p返回true
func (e *Engine) PTrueSafe(p float64) bool {
	return e.Float64Safe() < p
}

// UniformSafe 生成[lo, hi)范围内的均匀分布随机数
func (e *Engine) UniformSafe(lo, hi float64) float64 {
	return lo + (hi-lo)*e.Float64Safe()
}

// PoissonSafe 生成均值为mean的泊松分布随机数
// 算法说明：
// 1. mean较小时使用Knuth乘积法
// 2. mean>=30时使用正态近似并截断到非负
func (e *Engine) PoissonSafe(mean float64) int {
	if mean <= 0 {
		return 0
	}
	e.mtx.Lock()
	defer e.mtx.Unlock()
	if mean >= 30 {
		return max(0, int(math.Round(mean+math.Sqrt(mean)*e.NormFloat64())))
	}
	limit := math.Exp(-mean)
	k := 0
	p := e.Float64()
	for p > limit {
		k++
		p *= e.Float64()
	}
	return k
}
