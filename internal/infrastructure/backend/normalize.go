package backend

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"lexdraft-bff/internal/domain/entity"
)

// templatePagePaths 模板列表可能出现的位置，按顺序探测
// 接受三种形状：{templates,total_count}、{data:{templates,total_count}}、{data:{data:{...}}}
var templatePagePaths = []string{"", "data", "data.data"}

// normalizeTemplatePage 将不同嵌套层级的模板列表响应统一为 TemplatePage
// 裸数组视为完整列表，总数取数组长度
func normalizeTemplatePage(body []byte) (*entity.TemplatePage, error) {
	root := gjson.ParseBytes(body)
	if root.IsArray() {
		return decodeTemplates(root.Raw, -1)
	}

	for _, prefix := range templatePagePaths {
		node := root
		if prefix != "" {
			node = root.Get(prefix)
		}
		if !node.Exists() {
			continue
		}
		if node.IsArray() {
			return decodeTemplates(node.Raw, -1)
		}
		list := node.Get("templates")
		if !list.Exists() || !list.IsArray() {
			continue
		}
		total := -1
		if t := node.Get("total_count"); t.Exists() {
			total = int(t.Int())
		} else if t := node.Get("total"); t.Exists() {
			total = int(t.Int())
		}
		return decodeTemplates(list.Raw, total)
	}

	return nil, fmt.Errorf("unrecognized template page shape")
}

func decodeTemplates(raw string, total int) (*entity.TemplatePage, error) {
	templates := []entity.Template{}
	if err := json.Unmarshal([]byte(raw), &templates); err != nil {
		return nil, fmt.Errorf("failed to decode templates: %w", err)
	}
	if total < 0 {
		total = len(templates)
	}
	return &entity.TemplatePage{Templates: templates, TotalCount: total}, nil
}
