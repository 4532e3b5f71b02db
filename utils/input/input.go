package input

import (
	"context"
	"fmt"
	"os"

	"git.fiblab.net/general/common/v2/mongoutil"
	"github.com/pkg/errors"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/utils/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"gopkg.in/yaml.v2"
)

const (
	classJunction = "junction"
	classRoad     = "road"
)

// Location 路口坐标（WGS84）
type Location struct {
	Lon float64 `yaml:"lon" bson:"lon"`
	Lat float64 `yaml:"lat" bson:"lat"`
}

// Approach 进口道静态配置
type Approach struct {
	Name           string   `yaml:"name" bson:"name"`
	Direction      string   `yaml:"direction,omitempty" bson:"direction,omitempty"`             // 行驶方向，如eastbound
	SaturationFlow *float64 `yaml:"saturation_flow,omitempty" bson:"saturation_flow,omitempty"` // 缺省1800辆/小时
	Upstream       string   `yaml:"upstream,omitempty" bson:"upstream,omitempty"`               // 上游路口ID
	Lanes          []int32  `yaml:"lanes,omitempty" bson:"lanes,omitempty"`                     // 模拟器中路口车道序号
}

// Phase 相位配置
type Phase struct {
	Name       string   `yaml:"name" bson:"name"`
	Approaches []string `yaml:"approaches" bson:"approaches"`
}

// Junction 路口静态配置
// 说明：只在启动时读取，运行期间不修改
type Junction struct {
	ID         string     `yaml:"id" bson:"id"`
	SimID      int32      `yaml:"sim_id,omitempty" bson:"sim_id,omitempty"`       // 模拟器中的路口ID
	NumLanes   int        `yaml:"num_lanes,omitempty" bson:"num_lanes,omitempty"` // 模拟器中路口车道数
	Approaches []Approach `yaml:"approaches" bson:"approaches"`
	Phases     []Phase    `yaml:"phases,omitempty" bson:"phases,omitempty"`
	MinGreen   int        `yaml:"min_green,omitempty" bson:"min_green,omitempty"`
	MaxGreen   int        `yaml:"max_green,omitempty" bson:"max_green,omitempty"`
	Yellow     int        `yaml:"yellow,omitempty" bson:"yellow,omitempty"`
	Clearance  int        `yaml:"clearance,omitempty" bson:"clearance,omitempty"` // 全红清空时间（秒）
	LostTime   float64    `yaml:"lost_time,omitempty" bson:"lost_time,omitempty"` // 覆盖全局损失时间
	Location   *Location  `yaml:"location,omitempty" bson:"location,omitempty"`
}

// Road 连接两个路口的道路
type Road struct {
	From   string  `yaml:"from" bson:"from"`
	To     string  `yaml:"to" bson:"to"`
	Length float64 `yaml:"length,omitempty" bson:"length,omitempty"` // 米，为0时按坐标计算
	Oneway bool    `yaml:"oneway,omitempty" bson:"oneway,omitempty"`
}

// Network 路口网络
type Network struct {
	Junctions []Junction `yaml:"junctions"`
	Roads     []Road     `yaml:"roads,omitempty"`
}

// Init 加载路口网络
// 功能：根据配置从文件或MongoDB加载路口网络，补齐缺省值并校验
// 参数：c-配置对象
// 返回：路口网络；加载失败或配置非法时返回错误
// 算法说明：
// 1. 文件优先：YAML格式，严格解析
// 2. 否则从MongoDB集合读取，文档格式为{class: junction|road, data: {...}}
// 3. 补齐缺省值后校验
func Init(c config.Config) (*Network, error) {
	var n *Network
	var err error
	if c.Input.Network.File != "" {
		n, err = LoadFile(c.Input.Network.File)
	} else if c.Input.URI != "" {
		client := mongoutil.NewClient(c.Input.URI)
		defer client.Disconnect(context.Background())
		log.Infof("start fetching from %s.%s", c.Input.Network.DB, c.Input.Network.Col)
		n, err = LoadMongo(context.Background(), mongoutil.GetMongoColl(client, c.Input.Network))
		log.Infof("finish fetching from %s.%s", c.Input.Network.DB, c.Input.Network.Col)
	} else {
		return nil, errors.New("network input must specify file or uri")
	}
	if err != nil {
		return nil, err
	}
	n.fillDefaults()
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return n, nil
}

// LoadFile 从YAML文件加载路口网络
func LoadFile(path string) (*Network, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read network file")
	}
	var n Network
	if err := yaml.UnmarshalStrict(file, &n); err != nil {
		return nil, errors.Wrapf(err, "parse network file %s", path)
	}
	return &n, nil
}

type document struct {
	Class string   `bson:"class"`
	Data  bson.Raw `bson:"data"`
}

// LoadMongo 从MongoDB集合加载路口网络
func LoadMongo(ctx context.Context, coll *mongo.Collection) (*Network, error) {
	cursor, err := coll.Find(ctx, bson.D{})
	if err != nil {
		return nil, errors.Wrap(err, "find network documents")
	}
	var docs []document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode network documents")
	}
	n := &Network{}
	for i, doc := range docs {
		switch doc.Class {
		case classJunction:
			var j Junction
			if err := bson.Unmarshal(doc.Data, &j); err != nil {
				return nil, errors.Wrapf(err, "decode junction document %d", i)
			}
			n.Junctions = append(n.Junctions, j)
		case classRoad:
			var r Road
			if err := bson.Unmarshal(doc.Data, &r); err != nil {
				return nil, errors.Wrapf(err, "decode road document %d", i)
			}
			n.Roads = append(n.Roads, r)
		default:
			log.Warnf("ignore document %d with unknown class %q", i, doc.Class)
		}
	}
	return n, nil
}

// Get 按ID查找路口配置
func (n *Network) Get(id string) (Junction, bool) {
	for _, j := range n.Junctions {
		if j.ID == id {
			return j, true
		}
	}
	return Junction{}, false
}

// fillDefaults 补齐路口的绿灯上下限与黄灯
func (n *Network) fillDefaults() {
	for i := range n.Junctions {
		j := &n.Junctions[i]
		if j.MinGreen == 0 {
			j.MinGreen = DefaultMinGreen
		}
		if j.MaxGreen == 0 {
			j.MaxGreen = DefaultMaxGreen
		}
		if j.Yellow == 0 {
			j.Yellow = DefaultYellow
		}
	}
}

func (n *Network) String() string {
	return fmt.Sprintf("Network{junctions: %d, roads: %d}", len(n.Junctions), len(n.Roads))
}
