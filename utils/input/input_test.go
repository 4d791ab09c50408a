package input_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/config"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/input"
)

const world = `
sections:
  - {id: 1, length: 1000, max_v: 20}
  - {id: 2, length: 800, level_crossings: [300]}
signals:
  - {id: 10, section_id: 1, block: [2]}
paths:
  - name: main
    sub_paths:
      - [{section_id: 1}, {section_id: 2}]
    nodes:
      - {type: waiting_point, route_index: 1, section_id: 2, offset: 100, wait_time: 30}
trains:
  - id: 1
    path: main
    cars: 4
    car_length: 20
    stops:
      - {name: A, section_id: 2, offset: 500, dwell: 30, exit_signal: 0}
  - {id: 2, static: true, cars: 2, section_id: 2, offset: 700}
`

func writeFile(t *testing.T, name, content string) string {
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadWorld(t *testing.T) {
	w, err := input.Init(config.Input{World: writeFile(t, "world.yaml", world)})
	require.NoError(t, err)
	assert.Len(t, w.Sections, 2)
	assert.Equal(t, []float64{300}, w.Sections[1].LevelCrossings)
	assert.Equal(t, []int32{2}, w.Signals[0].Block)
	require.Len(t, w.Paths, 1)
	assert.Equal(t, int32(30), w.Paths[0].Nodes[0].WaitTime)
	require.Len(t, w.Trains, 2)
	assert.Equal(t, "A", w.Trains[0].Stops[0].Name)
	assert.True(t, w.Trains[1].Static)
}

func TestTrainFilter(t *testing.T) {
	w, err := input.Init(config.Input{
		World:    writeFile(t, "world.yaml", world),
		TrainIDs: []int32{2, 99},
	})
	require.NoError(t, err)
	require.Len(t, w.Trains, 1)
	assert.Equal(t, int32(2), w.Trains[0].ID)
}

func TestLoadParts(t *testing.T) {
	sections := writeFile(t, "sections.yaml", "- {id: 1, length: 100}\n")
	trains := writeFile(t, "trains.yaml", "- {id: 1, cars: 1, car_length: 20, static: true, section_id: 1}\n")
	w, err := input.Init(config.Input{
		Sections: config.InputPath{File: sections},
		Trains:   config.InputPath{File: trains},
	})
	require.NoError(t, err)
	assert.Len(t, w.Sections, 1)
	assert.Empty(t, w.Signals)
	assert.Len(t, w.Trains, 1)

	// 需要MongoDB但未配置连接字符串
	t.Setenv(input.MongoURIEnv, "")
	_, err = input.Init(config.Input{Sections: config.InputPath{DB: "rail", Col: "sections"}})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	_, err := input.Init(config.Input{World: writeFile(t, "bad.yaml", "sections: [{id: 1, length: 1}, {id: 1, length: 2}]\n")})
	assert.ErrorContains(t, err, "duplicated section id 1")

	_, err = input.Init(config.Input{World: writeFile(t, "bad.yaml", "signals: [{id: 1, section_id: 5}]\n")})
	assert.ErrorContains(t, err, "no section 5")

	// 未知字段
	_, err = input.Init(config.Input{World: writeFile(t, "bad.yaml", "sectons: []\n")})
	assert.Error(t, err)
}
