package providerstrategy_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestProviderStrategy(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "ProviderStrategy")
}
