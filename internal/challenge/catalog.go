package challenge

import (
	"github.com/felixgeelhaar/sensei/internal/domain"
)

// Catalog is the fixed set of subjects challenges can be generated for.
type Catalog struct {
	subjects []domain.Subject
	bySlug   map[string]domain.Subject
}

// NewCatalog indexes subjects by slug, keeping the given order.
func NewCatalog(subjects []domain.Subject) *Catalog {
	c := &Catalog{
		subjects: subjects,
		bySlug:   make(map[string]domain.Subject, len(subjects)),
	}
	for _, s := range subjects {
		c.bySlug[s.Slug] = s
	}
	return c
}

// DefaultCatalog returns the built-in subjects.
func DefaultCatalog() *Catalog {
	return NewCatalog(defaultSubjects())
}

// Get looks up a subject by slug.
func (c *Catalog) Get(slug string) (domain.Subject, bool) {
	s, ok := c.bySlug[slug]
	return s, ok
}

// List returns subjects in catalog order.
func (c *Catalog) List() []domain.Subject {
	out := make([]domain.Subject, len(c.subjects))
	copy(out, c.subjects)
	return out
}

func defaultSubjects() []domain.Subject {
	return []domain.Subject{
		{
			Slug:        "python-advanced",
			Name:        "Python Advanced",
			Description: "Master advanced Python concepts: generators, decorators, metaclasses, async/await, type hints, and design patterns.",
			Icon:        "🐍",
			Color:       "#10B981",
			Topics: []string{
				"generators and yield",
				"decorators (class-based and parameterized)",
				"metaclasses and __init_subclass__",
				"async/await and asyncio patterns",
				"context managers (__enter__/__exit__ and contextlib)",
				"descriptors and properties",
				"type hints and Protocol classes",
				"collections module (defaultdict, Counter, deque, OrderedDict)",
				"itertools (groupby, chain, product, combinations)",
				"functools (lru_cache, partial, reduce, wraps)",
				"design patterns in Python (singleton, factory, observer)",
				"exception handling (custom exceptions, exception chaining)",
				"GIL and threading vs multiprocessing",
				"memory management (gc, weakref, __slots__)",
			},
		},
		{
			Slug:        "java-deep-dive",
			Name:        "Java Deep Dive",
			Description: "Explore Java internals: collections, concurrency, JVM tuning, streams, generics, and design patterns.",
			Icon:        "☕",
			Color:       "#F59E0B",
			Topics: []string{
				"collections internals (HashMap, ConcurrentHashMap, TreeMap)",
				"concurrency (threads, executors, locks, CompletableFuture)",
				"JVM internals (class loading, bytecode, JIT compilation)",
				"streams API and functional interfaces",
				"generics (type erasure, bounded wildcards, PECS)",
				"design patterns (builder, strategy, observer, factory)",
				"exception handling (checked vs unchecked, try-with-resources)",
				"serialization (Serializable, transient, custom serialization)",
				"reflection and annotations",
				"Java memory model (happens-before, volatile, atomics)",
				"garbage collection (G1, ZGC, tuning flags)",
			},
		},
		{
			Slug:        "automation-testing",
			Name:        "Automation & Testing",
			Description: "Learn automation testing with Selenium/Appium, BDD best practices, framework design, and CI/CD patterns.",
			Icon:        "🤖",
			Color:       "#06B6D4",
			Topics: []string{
				"Selenium architecture and WebDriver protocol",
				"Appium setup and desired capabilities",
				"BDD with Behave/Cucumber (feature files, step definitions)",
				"page object model (design and anti-patterns)",
				"test framework design (base classes, utilities, config)",
				"CI/CD integration (Jenkins, GitHub Actions, pipeline config)",
				"parallel execution (pytest-xdist, Selenium Grid, cloud providers)",
				"test reporting (Allure, ExtentReports, custom reporters)",
				"API testing (requests, schema validation, contract testing)",
				"mobile testing strategies (native, hybrid, web)",
			},
		},
		{
			Slug:        "dsa-problem-solving",
			Name:        "DSA & Problem Solving",
			Description: "Build problem-solving skills with arrays, trees, graphs, dynamic programming, sliding window, and backtracking.",
			Icon:        "🧩",
			Color:       "#8B5CF6",
			Topics: []string{
				"arrays and prefix sums",
				"strings (pattern matching, KMP, Rabin-Karp)",
				"linked lists (reverse, merge, cycle detection)",
				"stacks (monotonic stack, expression evaluation)",
				"queues and deques (BFS, sliding window maximum)",
				"trees (BST, AVL, traversals, LCA)",
				"graphs (BFS, DFS, topological sort, shortest path)",
				"hash maps (collision handling, two-sum patterns)",
				"heaps (priority queues, top-k problems, median)",
				"sorting (quicksort, mergesort, counting sort, comparators)",
				"binary search (on answer, rotated array, first/last occurrence)",
				"sliding window (fixed and variable size)",
				"two pointers (sorted arrays, partitioning, fast-slow)",
				"BFS/DFS (connected components, islands, shortest path)",
				"dynamic programming (1D, 2D, knapsack, LCS, LIS)",
				"backtracking (permutations, combinations, N-queens)",
				"greedy (interval scheduling, Huffman, activity selection)",
			},
		},
	}
}
