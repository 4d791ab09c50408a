// 随机数引擎，包装了golang.org/x/exp/rand，提供了一些常用的随机数生成方法
package randengine

import (
	"flag"

	"golang.org/x/exp/rand"
)

var (
	seedOffset = flag.Uint64("rand.seed_offset", 0, "seed offset") // 种子偏移量，用于调整随机数生成
)

// Engine 随机数引擎
// 说明：非线程安全；每趟列车持有自己的引擎，结果与列车的更新顺序无关
type Engine struct {
	*rand.Rand
}

// New 创建随机数引擎
// 参数：seed-随机数种子，实际种子为seed加上命令行指定的偏移量
func New(seed uint64) *Engine {
	return &Engine{Rand: rand.New(rand.NewSource(seed + *seedOffset))}
}

// Derive 由基础种子与若干标识派生出子种子
// 功能：为每趟列车、每个鸣笛实例生成互不相关且可复现的种子
// 算法说明：splitmix64逐个混入标识
func Derive(base uint64, ids ...uint64) uint64 {
	s := base
	for _, id := range ids {
		s = mix(s ^ mix(id+0x9e3779b97f4a7c15))
	}
	return s
}

func mix(z uint64) uint64 {
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Uniform 在[lo, hi)内均匀采样
func (e *Engine) Uniform(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + (hi-lo)*e.Float64()
}
