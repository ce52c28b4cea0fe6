package attachment_test

import (
	"errors"
	"io"
	"strings"

	"github.com/ojhankit/team-collaboration-sys-backend/internal/attachment"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/afero"
)

var _ = Describe("FileStore", func() {
	var (
		fs    afero.Fs
		store *attachment.FileStore
	)

	BeforeEach(func() {
		fs = afero.NewMemMapFs()
		store = attachment.NewFileStoreOn(fs, 16)
	})

	It("should save and read back a file", func() {
		key := attachment.NewKey(7, "notes.TXT")
		Expect(key).To(HavePrefix("tasks/7/"))
		Expect(key).To(HaveSuffix(".txt"))

		n, err := store.Save(key, strings.NewReader("hello"))
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(5)))

		f, err := store.Open(key)
		Expect(err).NotTo(HaveOccurred())
		defer f.Close()
		data, err := io.ReadAll(f)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("hello"))
	})

	It("should reject and clean up files over the limit", func() {
		key := attachment.NewKey(7, "big.bin")

		_, err := store.Save(key, strings.NewReader(strings.Repeat("x", 17)))

		Expect(errors.Is(err, attachment.ErrFileTooLarge)).To(BeTrue())
		exists, _ := afero.Exists(fs, key)
		Expect(exists).To(BeFalse())
	})

	It("should accept a file exactly at the limit", func() {
		n, err := store.Save(attachment.NewKey(7, "edge.bin"), strings.NewReader(strings.Repeat("x", 16)))

		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(16)))
	})

	It("should never overwrite an existing key", func() {
		key := attachment.NewKey(7, "a.txt")
		_, err := store.Save(key, strings.NewReader("one"))
		Expect(err).NotTo(HaveOccurred())

		_, err = store.Save(key, strings.NewReader("two"))
		Expect(err).To(HaveOccurred())
	})

	It("should treat removing a missing file as success", func() {
		Expect(store.Remove("tasks/7/missing.txt")).To(Succeed())
	})

	It("should generate distinct keys", func() {
		Expect(attachment.NewKey(1, "a.txt")).NotTo(Equal(attachment.NewKey(1, "a.txt")))
	})
})
