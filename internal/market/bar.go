package market

import (
	"sort"
	"time"
)

// Bar 是一根 OHLCV K 线。合法的 Bar 满足 low <= open,close <= high 且价格均 > 0。
type Bar struct {
	Time   time.Time `json:"timestamp"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// SortBars 按时间升序原地排序，供返回无序结果的适配器使用。
func SortBars(bars []Bar) {
	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Time.Before(bars[j].Time)
	})
}

// Closes 提取收盘价序列。
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Between 返回 [start, end] 闭区间内的子序列（输入需已升序）。
func Between(bars []Bar, start, end time.Time) []Bar {
	lo := sort.Search(len(bars), func(i int) bool { return !bars[i].Time.Before(start) })
	hi := sort.Search(len(bars), func(i int) bool { return bars[i].Time.After(end) })
	if lo >= hi {
		return nil
	}
	return bars[lo:hi]
}
