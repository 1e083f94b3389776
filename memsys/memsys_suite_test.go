package memsys_test

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestMemsys(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Memsys Suite")
}
