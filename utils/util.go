package utils

import "github.com/samber/lo"

// FindBy 按ids筛选数据，保持ids的顺序
// 参数：data-全部数据，key-取数据ID，ids-需要的ID，为空时返回全部数据
// 返回：okData-找到的数据，missing-不存在的ID
func FindBy[K comparable, T any](data []T, key func(T) K, ids []K) (okData []T, missing []K) {
	if len(ids) == 0 {
		return data, nil
	}
	index := lo.KeyBy(data, key)
	okData = make([]T, 0, len(ids))
	for _, id := range ids {
		if d, ok := index[id]; ok {
			okData = append(okData, d)
		} else {
			missing = append(missing, id)
		}
	}
	return
}
