package review

import (
	"os"
	"testing"

	"go.uber.org/zap"

	"recipe-curator/internal/pkg/common"
)

func TestMain(m *testing.M) {
	common.Logger = zap.NewNop()
	os.Exit(m.Run())
}
