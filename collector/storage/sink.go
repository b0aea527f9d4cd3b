package storage

import (
	"context"

	"v2scrape/collector/model"
)

// Sink 是输出文件之外的可选发布目标，在每次运行成功写完文件后调用。
// files 是本次运行写入的所有文件 (分类文件和 README)。
type Sink interface {
	Name() string
	Publish(ctx context.Context, res *model.RunResult, files []string) error
	Close(ctx context.Context) error
}
