package input

import (
	"context"
	"fmt"
	"os"

	"git.fiblab.net/general/common/v2/mongoutil"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/railsim-ai/utils"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"gopkg.in/yaml.v2"
)

// MongoURIEnv 覆盖配置中MongoDB连接字符串的环境变量
const MongoURIEnv = "RAILSIM_MONGO_URI"

// Init 下载数据
// 功能：根据配置加载线路、路径模板与列车
// 参数：c-输入配置
// 返回：加载完成的数据
// 算法说明：
// 1. 配置了World时从单个YAML文件读取全部数据
// 2. 否则逐项读取：File非空读YAML文件，否则从MongoDB的{db}.{col}读取
// 3. 按TrainIDs筛选列车，不存在的ID记录警告
// 4. 检查各类数据的ID唯一
func Init(c config.Input) (*World, error) {
	if uri := os.Getenv(MongoURIEnv); uri != "" {
		c.URI = uri
	}
	var w *World
	var err error
	if c.World != "" {
		w, err = LoadWorldFile(c.World)
	} else {
		w, err = loadParts(c)
	}
	if err != nil {
		return nil, err
	}
	w.Trains = filterTrains(w.Trains, c.TrainIDs)
	if err := w.Validate(); err != nil {
		return nil, err
	}
	log.Infof("loaded %d sections, %d signals, %d paths, %d trains",
		len(w.Sections), len(w.Signals), len(w.Paths), len(w.Trains))
	return w, nil
}

// LoadWorldFile 从单个YAML文件读取全部数据
func LoadWorldFile(path string) (*World, error) {
	var w World
	if err := loadYAML(path, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

func loadYAML(path string, out any) error {
	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.UnmarshalStrict(file, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// loadParts 逐项读取数据
func loadParts(c config.Input) (*World, error) {
	var client *mongo.Client
	needMongo := lo.SomeBy([]config.InputPath{c.Sections, c.Signals, c.Paths, c.Trains}, func(p config.InputPath) bool {
		return p.File == "" && !p.IsEmpty()
	})
	if needMongo {
		if c.URI == "" {
			return nil, fmt.Errorf("mongo uri is required (set input.uri or %s)", MongoURIEnv)
		}
		client = mongoutil.NewClient(c.URI)
		defer client.Disconnect(context.Background())
	}
	w := &World{}
	if err := load(client, c.Sections, &w.Sections); err != nil {
		return nil, fmt.Errorf("load sections: %w", err)
	}
	if err := load(client, c.Signals, &w.Signals); err != nil {
		return nil, fmt.Errorf("load signals: %w", err)
	}
	if err := load(client, c.Paths, &w.Paths); err != nil {
		return nil, fmt.Errorf("load paths: %w", err)
	}
	if err := load(client, c.Trains, &w.Trains); err != nil {
		return nil, fmt.Errorf("load trains: %w", err)
	}
	return w, nil
}

// load 读取一类数据，未配置来源时保持为空
func load[T any](client *mongo.Client, p config.InputPath, out *[]T) error {
	switch {
	case p.File != "":
		return loadYAML(p.File, out)
	case p.IsEmpty():
		log.Warnf("no source for %T, leave it empty", *out)
		return nil
	}
	log.Infof("start fetching from %s.%s", p.DB, p.Col)
	coll := client.Database(p.GetDb()).Collection(p.GetColl())
	cursor, err := coll.Find(context.Background(), bson.D{})
	if err != nil {
		return err
	}
	if err := cursor.All(context.Background(), out); err != nil {
		return err
	}
	log.Infof("finish fetching %d documents from %s.%s", len(*out), p.DB, p.Col)
	return nil
}

// filterTrains 只保留ids中的列车，ids为空时全部保留
func filterTrains(trains []Train, ids []int32) []Train {
	ok, failed := utils.FindBy(trains, func(t Train) int32 { return t.ID }, ids)
	if len(failed) > 0 {
		log.Warnf("trains %v not found in input", failed)
	}
	return ok
}

// Validate 检查各类数据的ID唯一、引用存在
func (w *World) Validate() error {
	if id, ok := duplicated(w.Sections, func(s Section) int32 { return s.ID }); ok {
		return fmt.Errorf("duplicated section id %d", id)
	}
	if id, ok := duplicated(w.Signals, func(s Signal) int32 { return s.ID }); ok {
		return fmt.Errorf("duplicated signal id %d", id)
	}
	if id, ok := duplicated(w.Trains, func(t Train) int32 { return t.ID }); ok {
		return fmt.Errorf("duplicated train id %d", id)
	}
	names := make(map[string]bool, len(w.Paths))
	for _, p := range w.Paths {
		if names[p.Name] {
			return fmt.Errorf("duplicated path name %q", p.Name)
		}
		names[p.Name] = true
	}
	sections := lo.SliceToMap(w.Sections, func(s Section) (int32, bool) { return s.ID, true })
	for _, s := range w.Signals {
		if !sections[s.SectionID] {
			return fmt.Errorf("signal %d: no section %d", s.ID, s.SectionID)
		}
	}
	for _, t := range w.Trains {
		if !t.Static && !names[t.Path] {
			// 路径缺失的列车作为静止车辆处理，不视为错误
			log.Warnf("train %d: no path %q", t.ID, t.Path)
		}
	}
	return nil
}

func duplicated[T any](data []T, id func(T) int32) (int32, bool) {
	seen := make(map[int32]bool, len(data))
	for _, d := range data {
		if seen[id(d)] {
			return id(d), true
		}
		seen[id(d)] = true
	}
	return 0, false
}
