package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/opencontainers/go-digest"

	"github.com/chazu/harpoon/pkg/resource"
	"github.com/chazu/harpoon/pkg/transform"
)

var _ = Describe("Loader", func() {
	var (
		src *memorySource
		l   *Loader
	)

	BeforeEach(func() {
		src = newMemorySource("memory", map[string]string{
			"com/example/Target.unit":  "target",
			"com/example/Launch.unit":  "launch",
			"com/example/Empty.unit":   "",
			"orig/Unit.unit":           "original",
			"org/other/Helper.unit":    "helper",
			"runtime/sync/Mutex.unit":  "should never be read",
			"com/example/Another.unit": "another",
		})
		l = New(Options{Store: resource.NewStore("", src)})
	})

	Context("when loading a unit twice", func() {
		It("should return the identical handle and resolve once", func() {
			first, err := l.Load("com.example.Target")
			Expect(err).NotTo(HaveOccurred())

			second, err := l.Load("com.example.Target")
			Expect(err).NotTo(HaveOccurred())

			Expect(second).To(BeIdenticalTo(first))
			Expect(src.lookupsFor("com/example/Target.unit")).To(Equal(1))
			Expect(l.FinalizedNames()).To(ConsistOf("com.example.Target"))
		})

		It("should produce a module with digest and origin", func() {
			h, err := l.Load("com.example.Target")
			Expect(err).NotTo(HaveOccurred())

			m, ok := h.(*Module)
			Expect(ok).To(BeTrue())
			Expect(m.UnitName()).To(Equal("com.example.Target"))
			Expect(string(m.Content)).To(Equal("target"))
			Expect(m.Digest).To(Equal(xxhash.Sum64String("target")))
			Expect(m.Location).To(Equal("memory"))
		})
	})

	Context("when a unit cannot be resolved", func() {
		It("should poison the name and never resolve it again", func() {
			_, err := l.Load("com.example.Missing")
			Expect(err).To(HaveOccurred())
			Expect(IsNotFound(err)).To(BeTrue())

			var nf *NotFoundError
			Expect(errors.As(err, &nf)).To(BeTrue())
			Expect(nf.Name).To(Equal("com.example.Missing"))

			_, err = l.Load("com.example.Missing")
			Expect(errors.Is(err, ErrPreviouslyFailed)).To(BeTrue())
			Expect(src.lookupsFor("com/example/Missing.unit")).To(Equal(1))
			Expect(l.IsInvalid("com.example.Missing")).To(BeTrue())
		})

		It("should keep poisoned names after clearing the negative cache", func() {
			_, _ = l.Load("com.example.Missing")
			l.ClearNegativeEntries("com.example.Missing")

			_, err := l.Load("com.example.Missing")
			Expect(errors.Is(err, ErrPreviouslyFailed)).To(BeTrue())
			Expect(l.InvalidNames()).To(Equal([]string{"com.example.Missing"}))
		})

		It("should poison units the definer rejects", func() {
			_, err := l.Load("com.example.Empty")
			Expect(errors.Is(err, ErrEmptyContent)).To(BeTrue())
			Expect(l.IsInvalid("com.example.Empty")).To(BeTrue())
		})
	})

	Context("when a name is excluded", func() {
		It("should delegate to the parent without poisoning", func() {
			parentCalls := 0
			parentHandle := &Module{Name: "runtime.sync.Mutex"}
			l = New(Options{
				Store:      resource.NewStore("", src),
				Exclusions: []string{"runtime."},
				Parent: ParentFunc(func(name string) (Handle, error) {
					parentCalls++
					if name == "runtime.sync.Mutex" {
						return parentHandle, nil
					}
					return nil, &NotFoundError{Name: name}
				}),
			})

			h, err := l.Load("runtime.sync.Mutex")
			Expect(err).NotTo(HaveOccurred())
			Expect(h).To(BeIdenticalTo(parentHandle))
			Expect(src.lookupsFor("runtime/sync/Mutex.unit")).To(Equal(0))

			_, err = l.Load("runtime.Absent")
			Expect(err).To(HaveOccurred())
			_, _ = l.Load("runtime.Absent")
			Expect(parentCalls).To(Equal(3))
			Expect(l.IsInvalid("runtime.Absent")).To(BeFalse())
		})

		It("should fail without a parent", func() {
			l.AddExclusion("runtime.")
			Expect(l.IsExcluded("runtime.sync.Mutex")).To(BeTrue())

			_, err := l.Load("runtime.sync.Mutex")
			Expect(errors.Is(err, ErrNoParent)).To(BeTrue())
			Expect(l.IsInvalid("runtime.sync.Mutex")).To(BeFalse())
		})
	})

	Context("with transformers registered", func() {
		BeforeEach(func() {
			l.RegisterTransformer(transform.New("upper", 10, func(_, _ string, c []byte) ([]byte, error) {
				return bytes.ToUpper(c), nil
			}))
			l.RegisterExplicitTransformer([]string{"com.example.Target", "com.example.Launch"},
				transform.NewExplicit("stamp", 1, func(_ string, c []byte) ([]byte, error) {
					return append(append([]byte(nil), c...), "!"...), nil
				}))
		})

		It("should run the pipeline then the explicit queue", func() {
			h, err := l.Load("com.example.Target")
			Expect(err).NotTo(HaveOccurred())
			Expect(string(h.(*Module).Content)).To(Equal("TARGET!"))
			Expect(l.Explicit().Pending("com.example.Target")).To(Equal(0))
		})

		It("should only apply explicit transformers to excluded names", func() {
			l.AddTransformerExclusion("com.example.Launch")
			Expect(l.IsTransformerExcluded("com.example.Launch")).To(BeTrue())

			h, err := l.Load("com.example.Launch")
			Expect(err).NotTo(HaveOccurred())
			Expect(string(h.(*Module).Content)).To(Equal("launch!"))

			cached, ok := l.Finalized("com.example.Launch")
			Expect(ok).To(BeTrue())
			Expect(cached).To(BeIdenticalTo(h))
		})

		It("should poison units whose transformer fails", func() {
			l.RegisterTransformer(transform.New("broken", 20, func(name, _ string, c []byte) ([]byte, error) {
				if name == "org.other.Helper" {
					return nil, errors.New("cannot rewrite helper")
				}
				return c, nil
			}))

			_, err := l.Load("org.other.Helper")
			Expect(err).To(MatchError(ContainSubstring("cannot rewrite helper")))
			Expect(IsNotFound(err)).To(BeTrue())
			Expect(l.IsInvalid("org.other.Helper")).To(BeTrue())

			_, err = l.Load("com.example.Another")
			Expect(err).NotTo(HaveOccurred())
		})

		It("should stop applying a transformer once unregistered", func() {
			Expect(l.UnregisterTransformer("upper")).To(Equal(1))

			h, err := l.Load("com.example.Another")
			Expect(err).NotTo(HaveOccurred())
			Expect(string(h.(*Module).Content)).To(Equal("another"))
		})
	})

	Context("with a name remapper", func() {
		BeforeEach(func() {
			Expect(l.RegisterRemapper(transform.NewMapping("shade", 0,
				map[string]string{"orig.Unit": "shaded.Unit"}))).To(BeTrue())
		})

		It("should define under the mapped name and read the unmapped content", func() {
			h, err := l.Load("orig.Unit")
			Expect(err).NotTo(HaveOccurred())
			Expect(h.UnitName()).To(Equal("shaded.Unit"))
			Expect(string(h.(*Module).Content)).To(Equal("original"))

			_, ok := l.Finalized("shaded.Unit")
			Expect(ok).To(BeTrue())

			again, err := l.Load("orig.Unit")
			Expect(err).NotTo(HaveOccurred())
			Expect(again).To(BeIdenticalTo(h))

			byMapped, err := l.Load("shaded.Unit")
			Expect(err).NotTo(HaveOccurred())
			Expect(byMapped).To(BeIdenticalTo(h))
			Expect(src.lookupsFor("orig/Unit.unit")).To(Equal(1))
		})

		It("should resolve the mapped name through the unmapped content", func() {
			h, err := l.Load("shaded.Unit")
			Expect(err).NotTo(HaveOccurred())
			Expect(string(h.(*Module).Content)).To(Equal("original"))
			Expect(src.lookupsFor("shaded/Unit.unit")).To(Equal(0))
		})
	})

	Context("with a custom definer", func() {
		It("should hand the unit to the definer", func() {
			var got *Unit
			l = New(Options{
				Store: resource.NewStore("", src),
				Definer: DefinerFunc(func(u *Unit) (Handle, error) {
					got = u
					return &Module{Name: u.Name}, nil
				}),
			})

			_, err := l.Load("com.example.Empty")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Name).To(Equal("com.example.Empty"))
			Expect(got.Location()).To(Equal("memory"))
			Expect(got.Package.Name).To(Equal("com.example"))
		})
	})

	Context("when a collaborator panics", func() {
		It("should poison a unit whose transformer panics and keep loading others", func() {
			l.RegisterTransformer(transform.New("crash", 0, func(name, _ string, content []byte) ([]byte, error) {
				if name == "com.example.Target" {
					panic("transformer crash")
				}
				return content, nil
			}))

			_, err := l.Load("com.example.Target")
			Expect(IsNotFound(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("panic"))
			Expect(l.IsInvalid("com.example.Target")).To(BeTrue())

			_, err = l.Load("com.example.Target")
			Expect(errors.Is(err, ErrPreviouslyFailed)).To(BeTrue())

			h, err := l.Load("com.example.Another")
			Expect(err).NotTo(HaveOccurred())
			Expect(h.UnitName()).To(Equal("com.example.Another"))
		})

		It("should poison a unit whose explicit transformer panics", func() {
			l.RegisterExplicitTransformer([]string{"com.example.Launch"},
				transform.NewExplicit("crash", 0, func(string, []byte) ([]byte, error) {
					panic("explicit crash")
				}))

			_, err := l.Load("com.example.Launch")
			Expect(IsNotFound(err)).To(BeTrue())
			Expect(l.IsInvalid("com.example.Launch")).To(BeTrue())
		})

		It("should poison a unit whose definer panics", func() {
			l = New(Options{
				Store: resource.NewStore("", src),
				Definer: DefinerFunc(func(u *Unit) (Handle, error) {
					if u.Name == "com.example.Target" {
						panic("definer crash")
					}
					return ModuleDefiner{}.Define(u)
				}),
			})

			_, err := l.Load("com.example.Target")
			Expect(IsNotFound(err)).To(BeTrue())
			Expect(l.IsInvalid("com.example.Target")).To(BeTrue())
			Expect(l.FinalizedNames()).To(BeEmpty())

			_, err = l.Load("com.example.Another")
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Context("when loading concurrently", func() {
		It("should hand every caller the same handle", func() {
			var wg sync.WaitGroup
			handles := make([]Handle, 32)
			for i := range handles {
				wg.Add(1)
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()
					h, err := l.Load("com.example.Target")
					Expect(err).NotTo(HaveOccurred())
					handles[i] = h
				}(i)
			}
			wg.Wait()

			for _, h := range handles {
				Expect(h).To(BeIdenticalTo(handles[0]))
			}
		})
	})

	Context("when preloading", func() {
		It("should report only the failures", func() {
			failed := l.Preload(context.Background(),
				[]string{"com.example.Target", "com.example.Another", "nope.Missing", "com.example.Empty"}, 2)

			Expect(failed).To(HaveLen(2))
			Expect(failed).To(HaveKey("nope.Missing"))
			Expect(failed).To(HaveKey("com.example.Empty"))
			Expect(l.FinalizedNames()).To(ConsistOf("com.example.Target", "com.example.Another"))
		})

		It("should not load anything once the context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			failed := l.Preload(ctx, []string{"com.example.Target", "org.other.Helper"}, 0)
			Expect(failed).To(HaveLen(2))
			for _, err := range failed {
				Expect(errors.Is(err, context.Canceled)).To(BeTrue())
			}
			Expect(l.FinalizedNames()).To(BeEmpty())
		})
	})
})

var _ = Describe("Package attribution", func() {
	var (
		dir     string
		capture *captureLogger
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		capture = &captureLogger{}
	})

	newLoader := func(sources ...resource.Source) *Loader {
		return New(Options{
			Store:  resource.NewStore("", sources...),
			Logger: capture.logger(),
		})
	}

	It("should define unsealed packages for plain sources", func() {
		l := newLoader(newMemorySource("memory", map[string]string{"com/example/A.unit": "a"}))

		h, err := l.Load("com.example.A")
		Expect(err).NotTo(HaveOccurred())

		pkg, ok := l.Package("com.example")
		Expect(ok).To(BeTrue())
		Expect(pkg.Sealed).To(BeFalse())
		Expect(h.(*Module).Package).To(BeIdenticalTo(pkg))
		Expect(l.PackageNames()).To(Equal([]string{"com.example"}))
	})

	It("should not attribute units without a namespace", func() {
		l := newLoader(newMemorySource("memory", map[string]string{"Top.unit": "t"}))

		h, err := l.Load("Top")
		Expect(err).NotTo(HaveOccurred())
		Expect(h.(*Module).Package).To(BeNil())
		Expect(l.PackageNames()).To(BeEmpty())
	})

	It("should seal packages from the bundle manifest and verify digests", func() {
		body := "sealed body"
		archive := writeArchive(dir, "sealed.zip", map[string]string{
			resource.ManifestPath: fmt.Sprintf(`
name: "sealed"
version: "3.1"
sealed: true
entries: "com/example/A.unit": digest: %q
entries: "com/example/B.unit": digest: %q
`, digest.FromString(body), digest.FromString("something else")),
			"com/example/A.unit": body,
			"com/example/B.unit": "tampered",
		})
		bundle, err := resource.OpenArchive(archive)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(bundle.Close)

		l := newLoader(bundle, newMemorySource("memory", map[string]string{"com/example/C.unit": "c"}))

		h, err := l.Load("com.example.A")
		Expect(err).NotTo(HaveOccurred())
		m := h.(*Module)
		Expect(m.Signers).To(Equal([]digest.Digest{digest.FromString(body)}))
		Expect(m.Package.Sealed).To(BeTrue())
		Expect(m.Package.Version).To(Equal("3.1"))
		Expect(m.Package.IsSealedBy(bundle.Location())).To(BeTrue())

		By("warning about digest mismatches without failing")
		h, err = l.Load("com.example.B")
		Expect(err).NotTo(HaveOccurred())
		Expect(h.(*Module).Signers).To(BeEmpty())
		Expect(capture.contains("digest-mismatch")).To(BeTrue())

		By("warning when another source defines units in the sealed package")
		_, err = l.Load("com.example.C")
		Expect(err).NotTo(HaveOccurred())
		Expect(capture.contains("sealed-package")).To(BeTrue())
	})

	It("should warn when a bundle seals an already unsealed package", func() {
		archive := writeArchive(dir, "late.zip", map[string]string{
			resource.ManifestPath: `name: "late", sealed: true`,
			"com/example/B.unit":  "b",
		})
		bundle, err := resource.OpenArchive(archive)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(bundle.Close)

		l := newLoader(newMemorySource("memory", map[string]string{"com/example/A.unit": "a"}), bundle)

		_, err = l.Load("com.example.A")
		Expect(err).NotTo(HaveOccurred())
		_, err = l.Load("com.example.B")
		Expect(err).NotTo(HaveOccurred())
		Expect(capture.contains("unsealed-package")).To(BeTrue())
	})
})

var _ = Describe("Dumping finalized units", func() {
	It("should write transformed content and overwrite old files", func() {
		dumpDir := filepath.Join(GinkgoT().TempDir(), "dump")
		stale := filepath.Join(dumpDir, "com", "example", "Target.unit")
		Expect(os.MkdirAll(filepath.Dir(stale), 0o755)).To(Succeed())
		Expect(os.WriteFile(stale, []byte("stale"), 0o644)).To(Succeed())

		l := New(Options{
			Store: resource.NewStore("", newMemorySource("memory", map[string]string{
				"com/example/Target.unit": "fresh",
			})),
			Debug: Debug{DumpDir: dumpDir, Trace: true, Finer: true},
		})
		Expect(l.DumpDir()).To(Equal(dumpDir))

		_, err := l.Load("com.example.Target")
		Expect(err).NotTo(HaveOccurred())

		data, err := os.ReadFile(stale)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("fresh"))
	})

	It("should disable dumping when the directory cannot be created", func() {
		blocker := filepath.Join(GinkgoT().TempDir(), "file")
		Expect(os.WriteFile(blocker, nil, 0o644)).To(Succeed())

		l := New(Options{
			Store: resource.NewStore("", newMemorySource("memory", map[string]string{"a/B.unit": "b"})),
			Debug: Debug{DumpDir: filepath.Join(blocker, "dump")},
		})
		Expect(l.DumpDir()).To(BeEmpty())

		_, err := l.Load("a.B")
		Expect(err).NotTo(HaveOccurred())
	})
})
