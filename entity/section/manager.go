package section

import (
	"fmt"

	"git.fiblab.net/general/common/v2/parallel"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/railsim-ai/entity"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/input"
)

// SectionManager 区段管理器
type SectionManager struct {
	ctx entity.ITaskContext

	data     map[int32]*Section
	sections []*Section
}

// NewManager 创建区段管理器
func NewManager(ctx entity.ITaskContext) *SectionManager {
	return &SectionManager{
		ctx:      ctx,
		data:     make(map[int32]*Section),
		sections: make([]*Section, 0),
	}
}

// Init 初始化所有区段
func (m *SectionManager) Init(pbs []input.Section) {
	m.sections = lo.Map(pbs, func(pb input.Section, _ int) *Section {
		return newSection(pb)
	})
	m.data = lo.SliceToMap(m.sections, func(s *Section) (int32, *Section) {
		return s.id, s
	})
	if len(m.data) != len(m.sections) {
		log.Panic("sections have duplicated ids, please check data")
	}
}

// Get 根据ID获取区段，不存在则panic
func (m *SectionManager) Get(id int32) entity.ISection {
	if s, ok := m.data[id]; !ok {
		log.Panicf("no id %d in section data", id)
		return nil
	} else {
		return s
	}
}

// GetOrError 根据ID获取区段，不存在则返回错误
func (m *SectionManager) GetOrError(id int32) (entity.ISection, error) {
	if s, ok := m.data[id]; !ok {
		return nil, fmt.Errorf("no id %d in section data", id)
	} else {
		return s, nil
	}
}

// SetTableAligned 设置转车台对准状态（Prepare后生效）
func (m *SectionManager) SetTableAligned(id int32, aligned bool) error {
	s, ok := m.data[id]
	if !ok {
		return fmt.Errorf("no id %d in section data", id)
	}
	if !s.movableTable {
		return fmt.Errorf("%v is not a movable table", s)
	}
	s.setTableAligned(aligned)
	return nil
}

// Prepare 准备阶段：占用快照更新
func (m *SectionManager) Prepare() {
	parallel.GoFor(m.sections, func(s *Section) { s.prepare() })
}
