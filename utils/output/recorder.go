package output

import (
	"context"
	"sync"
	"time"

	"git.fiblab.net/general/common/v2/mongoutil"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/utils/config"
	"go.mongodb.org/mongo-driver/mongo"
)

var log = logrus.WithField("module", "output")

const (
	bufferSize = 1024 // 待写入事件的缓冲区大小
	batchSize  = 64   // 单次批量写入的事件数
)

// Recorder 紧急事件审计记录器
// 功能：每个事件输出一条日志；配置了MongoDB时异步批量写入审计集合
// 说明：Record不阻塞控制循环，缓冲区满时丢弃事件并告警；Close等待缓冲区写完
type Recorder struct {
	client *mongo.Client
	coll   *mongo.Collection

	ch   chan entity.EmergencyEvent
	wg   sync.WaitGroup
	once sync.Once
}

// New 创建审计记录器
// 参数：c-输出配置，为nil或未配置uri时只输出日志
func New(c *config.Output) *Recorder {
	r := &Recorder{}
	if c == nil || c.URI == "" {
		return r
	}
	r.client = mongoutil.NewClient(c.URI)
	r.coll = mongoutil.GetMongoColl(r.client, c.Audit)
	r.ch = make(chan entity.EmergencyEvent, bufferSize)
	r.wg.Add(1)
	go r.run()
	log.Infof("emergency audit to %s.%s", c.Audit.DB, c.Audit.Col)
	return r
}

// Record 记录事件
func (r *Recorder) Record(e entity.EmergencyEvent) {
	log.Infof("emergency %s %s: type=%s priority=%d route=%v duration=%.0fs t=%.0f",
		e.OverrideID, e.Kind, e.Type, e.Priority, e.Route, e.Duration, e.T)
	if r.ch == nil {
		return
	}
	select {
	case r.ch <- e:
	default:
		log.Warnf("audit buffer full, drop event %s %s", e.OverrideID, e.Kind)
	}
}

// run 后台批量写入
func (r *Recorder) run() {
	defer r.wg.Done()
	batch := make([]entity.EmergencyEvent, 0, batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := r.coll.InsertMany(ctx, lo.ToAnySlice(batch)); err != nil {
			log.Errorf("write %d audit events failed: %v", len(batch), err)
		}
		batch = batch[:0]
	}
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case e, ok := <-r.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, e)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// Close 写完缓冲区中的事件并断开连接，可重复调用
func (r *Recorder) Close() {
	r.once.Do(func() {
		if r.ch == nil {
			return
		}
		close(r.ch)
		r.wg.Wait()
		if err := r.client.Disconnect(context.Background()); err != nil {
			log.Warnf("disconnect audit mongo: %v", err)
		}
	})
}
