package quote

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/cloudwego/eino-ext/components/document/loader/file"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/document/parser"
)

// DefaultCurated is served when the responder is down and no quotes file is configured.
var DefaultCurated = []string{
	"Small steps every day add up to big results.",
	"You are stronger than you think and braver than you feel.",
	"Progress, not perfection.",
	"The best time to start was yesterday. The next best time is now.",
	"Difficult roads often lead to beautiful destinations.",
	"Believe you can and you're halfway there.",
	"Every setback is a setup for a comeback.",
	"Your only limit is the one you set for yourself.",
	"Rest if you must, but don't quit.",
	"Done is better than perfect.",
}

// Pick chooses a quote from list deterministically for key.
func Pick(list []string, key string) string {
	if len(list) == 0 {
		list = DefaultCurated
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return list[h.Sum32()%uint32(len(list))]
}

// LoadCurated reads one quote per line from path. Blank lines and lines starting
// with # are skipped.
func LoadCurated(ctx context.Context, path string) ([]string, error) {
	parserExt, err := parser.NewExtParser(ctx, &parser.ExtParserConfig{
		FallbackParser: parser.TextParser{},
	})
	if err != nil {
		return nil, fmt.Errorf("init parser: %w", err)
	}
	loader, err := file.NewFileLoader(ctx, &file.FileLoaderConfig{
		UseNameAsID: true,
		Parser:      parserExt,
	})
	if err != nil {
		return nil, fmt.Errorf("init file loader: %w", err)
	}
	docs, err := loader.Load(ctx, document.Source{URI: path})
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	var quotes []string
	for _, doc := range docs {
		for _, line := range strings.Split(doc.Content, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			quotes = append(quotes, line)
		}
	}
	if len(quotes) == 0 {
		return nil, fmt.Errorf("no quotes in %s", path)
	}
	return quotes, nil
}
