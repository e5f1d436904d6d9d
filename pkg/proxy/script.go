package proxy

// Marker prefixes for the console side channel. The instrumented page has no
// direct path back to the controller, so captured interactions ride out as
// marker-prefixed console calls with the JSON payload as the second argument.
const (
	markerPrefix      = "BROWSERBASE_EVENT_PROXY"
	interactionMarker = markerPrefix + ":DOM_INTERACTION:"
	initializedMarker = markerPrefix + ":INITIALIZED"
)

// instrumentationScript runs inside the page context. It binds interaction
// listeners to every interactive element, watches for inserted subtrees, and
// reports each captured interaction through the console side channel. The
// tracked-element set lives only in the page and is destroyed on navigation,
// so the script is re-evaluated on every page load.
const instrumentationScript = `(() => {
  const MARKER = '` + markerPrefix + `';
  if (window.__eventProxyInstrumented) {
    return;
  }
  window.__eventProxyInstrumented = true;

  const tracked = new WeakSet();

  const INTERACTIVE_SELECTORS = [
    'a', 'button', 'input', 'textarea', 'select', 'option',
    '[role]', '[contenteditable]', '[tabindex]'
  ];
  const SELECTOR = INTERACTIVE_SELECTORS.join(',');

  const INTERACTION_EVENTS = [
    'click', 'focus', 'blur', 'input', 'change',
    'mousedown', 'mouseup', 'touchstart', 'touchend'
  ];

  function isVisible(el) {
    try {
      const style = window.getComputedStyle(el);
      return style.display !== 'none' && style.visibility !== 'hidden';
    } catch (e) {
      return false;
    }
  }

  function extractDetail(el) {
    try {
      const rect = el.getBoundingClientRect();
      const attributes = {};
      for (const attr of el.attributes || []) {
        attributes[attr.name] = attr.value;
      }
      return {
        tag: el.tagName ? el.tagName.toLowerCase() : '',
        id: el.id || '',
        class: el.className && el.className.toString ? el.className.toString() : '',
        type: el.type || '',
        value: el.value !== undefined ? String(el.value) : '',
        checked: el.checked === true,
        placeholder: el.placeholder || '',
        name: el.name || '',
        contentEditable: el.isContentEditable === true,
        visible: isVisible(el),
        disabled: el.disabled === true,
        readOnly: el.readOnly === true,
        attributes: attributes,
        rect: {
          top: rect.top, right: rect.right, bottom: rect.bottom, left: rect.left,
          width: rect.width, height: rect.height, x: rect.x, y: rect.y
        }
      };
    } catch (e) {
      return null;
    }
  }

  function emit(type, el) {
    const element = extractDetail(el);
    if (!element) {
      return;
    }
    const payload = { type: type, element: element, timestamp: Date.now() };
    console.log(MARKER + ':DOM_INTERACTION:' + type.toUpperCase(), JSON.stringify(payload));
  }

  function instrument(el) {
    if (tracked.has(el)) {
      return;
    }
    tracked.add(el);
    for (const type of INTERACTION_EVENTS) {
      el.addEventListener(type, (event) => {
        emit(event.type, event.target instanceof Element ? event.target : el);
      }, { passive: true });
    }
  }

  function instrumentTree(root) {
    if (root instanceof Element && root.matches(SELECTOR)) {
      instrument(root);
    }
    if (root.querySelectorAll) {
      for (const el of root.querySelectorAll(SELECTOR)) {
        instrument(el);
      }
    }
  }

  instrumentTree(document);

  // Focus and blur do not bubble reliably to arbitrary ancestors; capture
  // them at the document root and attribute to the event target.
  document.addEventListener('focusin', (event) => {
    if (event.target instanceof Element) {
      emit('focus', event.target);
    }
  }, { passive: true });
  document.addEventListener('focusout', (event) => {
    if (event.target instanceof Element) {
      emit('blur', event.target);
    }
  }, { passive: true });

  const observer = new MutationObserver((mutations) => {
    for (const mutation of mutations) {
      for (const node of mutation.addedNodes) {
        if (node instanceof Element) {
          instrumentTree(node);
        }
      }
    }
  });
  observer.observe(document.documentElement || document, {
    childList: true,
    subtree: true
  });

  console.log('` + initializedMarker + `');
})();`
