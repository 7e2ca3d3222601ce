package localkv

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestLocalKVSuite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "LocalKV Suite")
}
