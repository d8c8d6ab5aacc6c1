package holonomic_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestHolonomicSuite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Holonomic Suite")
}
